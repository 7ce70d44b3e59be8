// Package mssqlimport bulk-loads an existing HIS's department hierarchy
// (Pole/Service/UF; French hospital HIS's such as Heliant commonly run on
// SQL Server) into the topology tree (internal/structure), instead of the
// operator hand-entering every node. Housing units, rooms and beds are not
// imported.
package mssqlimport

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/denisenkom/go-mssqldb" // SQL Server driver

	"github.com/serbia-gov/platform/internal/shared/types"
	"github.com/serbia-gov/platform/internal/structure"
)

// Config describes the source SQL Server database and which tables carry
// each level of the hierarchy. Only the levels below LegalEntity are
// imported from the HIS; the LegalEntity/GeographicEntity roots are
// expected to already exist (created once via structure.Resolver.Create).
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	// DepartmentTable holds the Pole/Service/UF hierarchy, keyed by a
	// self-referential parent column.
	DepartmentTable string
	// RoomTable holds Housing Unit/Room records under a department.
	RoomTable string
	// BedTable holds Bed records under a room.
	BedTable string

	// RootIdentifier is the already-existing structure.Node (typically a
	// GeographicEntity) new departments attach under.
	RootIdentifier string
}

// Importer runs one-shot imports against a SQL Server source.
type Importer struct {
	db       *sql.DB
	cfg      Config
	resolver *structure.Resolver
}

func New(cfg Config, resolver *structure.Resolver) *Importer {
	return &Importer{cfg: cfg, resolver: resolver}
}

// Connect opens and verifies the SQL Server connection. Call once before
// Import.
func (im *Importer) Connect(ctx context.Context) error {
	connStr := fmt.Sprintf("server=%s;port=%d;database=%s;user id=%s;password=%s",
		im.cfg.Host, im.cfg.Port, im.cfg.Database, im.cfg.User, im.cfg.Password)
	if im.cfg.SSLMode != "disable" {
		connStr += ";encrypt=true;TrustServerCertificate=true"
	}

	db, err := sql.Open("sqlserver", connStr)
	if err != nil {
		return fmt.Errorf("failed to open SQL Server connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping SQL Server: %w", err)
	}
	im.db = db
	return nil
}

func (im *Importer) Close() error {
	if im.db == nil {
		return nil
	}
	return im.db.Close()
}

// departmentRow is one row of the HIS's department hierarchy table.
type departmentRow struct {
	Code       string
	ParentCode sql.NullString
	Name       string
	Level      string // expected to be one of "pole", "service", "uf"
}

// levelByName maps the HIS's own level labels onto structure.PhysicalType;
// a HIS unrecognized label is skipped rather than guessed at.
var levelByName = map[string]structure.PhysicalType{
	"pole":    structure.Pole,
	"service": structure.Service,
	"uf":      structure.FunctionalUnit,
}

// Import loads the department rows (Pole/Service/UF) under the configured
// root and returns the number of nodes created. RoomTable and BedTable are
// not read: rooms and beds are not imported. Rows whose parent appears later
// in the source are retried; if some rows reference a parent that never
// resolves, Import stops with an error.
func (im *Importer) Import(ctx context.Context) (int, error) {
	root, err := im.resolver.Resolve(ctx, im.cfg.RootIdentifier)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve import root %q: %w", im.cfg.RootIdentifier, err)
	}
	if root == nil {
		return 0, fmt.Errorf("import root %q does not exist; create it first", im.cfg.RootIdentifier)
	}

	departments, err := im.fetchDepartments(ctx)
	if err != nil {
		return 0, err
	}
	return im.importDepartments(ctx, root, departments)
}

// importDepartments walks the flat department row list and creates nodes
// top-down (each parent before its children), independent of how the rows were fetched, so the tree-building
// logic can be exercised without a live SQL Server connection.
func (im *Importer) importDepartments(ctx context.Context, root *structure.Node, departments []departmentRow) (int, error) {
	created := 0
	deptIDs := map[string]types.ID{} // HIS code -> created node ID, for rooms/beds to attach under

	// Departments may reference a parent department not yet imported if the
	// source rows aren't topologically sorted; retry until a pass makes no
	// progress, matching how a real HIS export (unsorted dumps) behaves.
	pending := departments
	for len(pending) > 0 {
		var next []departmentRow
		progressed := false

		for _, row := range pending {
			physicalType, ok := levelByName[row.Level]
			if !ok {
				continue
			}

			var parentID *types.ID
			if row.ParentCode.Valid {
				id, ok := deptIDs[row.ParentCode.String]
				if !ok {
					next = append(next, row)
					continue
				}
				parentID = &id
			} else {
				parentID = &root.ID
			}

			n := &structure.Node{
				PhysicalType: physicalType,
				Identifier:   row.Code,
				Name:         row.Name,
				ParentID:     parentID,
				Status:       structure.StatusActive,
				Mode:         structure.ModeInstance,
			}
			if err := im.resolver.Create(ctx, n); err != nil {
				return created, fmt.Errorf("failed to create department %s: %w", row.Code, err)
			}
			deptIDs[row.Code] = n.ID
			created++
			progressed = true
		}

		if !progressed && len(next) > 0 {
			return created, fmt.Errorf("%d department rows reference a parent that never resolved", len(next))
		}
		pending = next
	}

	return created, nil
}

func (im *Importer) fetchDepartments(ctx context.Context) ([]departmentRow, error) {
	rows, err := im.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT Code, ParentCode, Name, Level FROM %s`, im.cfg.DepartmentTable))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", im.cfg.DepartmentTable, err)
	}
	defer rows.Close()

	var out []departmentRow
	for rows.Next() {
		var row departmentRow
		if err := rows.Scan(&row.Code, &row.ParentCode, &row.Name, &row.Level); err != nil {
			return nil, fmt.Errorf("failed to scan department row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
