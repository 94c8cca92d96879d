package reftable

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ppiankov/riskwatch/internal/model"
)

var testAsOf = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func loadDefault(t *testing.T) *Tables {
	t.Helper()
	tables, err := DefaultSource{AsOf: testAsOf}.Load(context.Background())
	if err != nil {
		t.Fatalf("DefaultSource.Load() error: %v", err)
	}
	return tables
}

func TestDefaultSource_Advisors(t *testing.T) {
	tables := loadDefault(t)

	tests := []struct {
		desc   string
		reg    string
		name   string
		status model.AdvisorStatus
		found  bool
	}{
		{"exact", "IN123456", "John Smith", model.StatusActive, true},
		{"lowercase and padded", "  in987654 ", "Sarah Johnson", model.StatusSuspended, true},
		{"revoked", "INA000067890", "Arjun Mehta", model.StatusRevoked, true},
		{"missing", "IN000000", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			a, ok := tables.AdvisorByRegistration(tt.reg)
			if ok != tt.found {
				t.Fatalf("found = %v, want %v", ok, tt.found)
			}
			if !ok {
				return
			}
			if a.Name != tt.name || a.Status != tt.status {
				t.Errorf("got %s (%s), want %s (%s)", a.Name, a.Status, tt.name, tt.status)
			}
		})
	}
}

func TestTables_AdvisorsByName(t *testing.T) {
	tables := loadDefault(t)

	got := tables.AdvisorsByName("  JANE   doe ")
	if len(got) != 1 || got[0].RegistrationNumber != "IN654321" {
		t.Errorf("AdvisorsByName() = %v, want IN654321", got)
	}
	if got := tables.AdvisorsByName("Nobody Here"); len(got) != 0 {
		t.Errorf("expected no match, got %v", got)
	}
}

func TestTables_AdvisorsSorted(t *testing.T) {
	all := loadDefault(t).Advisors()
	for i := 1; i < len(all); i++ {
		if all[i-1].RegistrationNumber >= all[i].RegistrationNumber {
			t.Fatalf("advisors not sorted at %d: %s >= %s", i, all[i-1].RegistrationNumber, all[i].RegistrationNumber)
		}
	}
}

func TestTables_Domain(t *testing.T) {
	tables := loadDefault(t)

	tests := []struct {
		desc   string
		host   string
		domain string
		found  bool
	}{
		{"exact", "bitcoin-doubler.com", "bitcoin-doubler.com", true},
		{"case and trailing dot", "Bitcoin-Doubler.COM.", "bitcoin-doubler.com", true},
		{"subdomain falls back to registrable", "www.sebi.gov.in", "sebi.gov.in", true},
		{"port stripped", "zerodha.com:443", "zerodha.com", true},
		{"unknown", "unknown-broker.example.org", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			d, ok := tables.Domain(tt.host)
			if ok != tt.found {
				t.Fatalf("found = %v, want %v", ok, tt.found)
			}
			if ok && d.Domain != tt.domain {
				t.Errorf("Domain(%q) = %s, want %s", tt.host, d.Domain, tt.domain)
			}
		})
	}

	d, _ := tables.Domain("bitcoin-doubler.com")
	if !slices.Contains(d.Flags, "known_fraud") {
		t.Errorf("expected known_fraud flag, got %v", d.Flags)
	}
	if age, ok := d.AgeDays(tables.AsOf()); !ok || age <= 0 || age > 180 {
		t.Errorf("expected a recent domain, got age %d days", age)
	}
}

func TestNew_Duplicates(t *testing.T) {
	advisors := []model.AdvisorRecord{
		{RegistrationNumber: "IN1", Name: "A"},
		{RegistrationNumber: "in1", Name: "B"},
		{RegistrationNumber: "", Name: "C"},
	}
	domains := []model.DomainRecord{
		{Domain: "a.com"},
		{Domain: "A.com."},
	}

	_, err := New("test", advisors, domains, testAsOf)

	var catErr *model.CatalogError
	if !errors.As(err, &catErr) {
		t.Fatalf("expected *model.CatalogError, got %v", err)
	}
	if len(catErr.Problems) != 3 {
		t.Errorf("expected 3 problems, got %v", catErr.Problems)
	}
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	advisorsCSV := filepath.Join(dir, "advisors.csv")
	domainsYAML := filepath.Join(dir, "domains.yaml")

	writeFile(t, advisorsCSV, "registration_number,name,status,registered_entity,jurisdiction\n"+
		"US111111,Alice Walker,registered,Walker LLC,us\n"+
		"US222222,Bob Stone,cancelled,,US\n")
	writeFile(t, domainsYAML, `- domain: fresh-gains.top
  registrar: Namecheap
  creation_date: "2024-05-20"
  flags: [Reported]
- domain: oldbank.com
  creation_date: "2001-01-01"
`)

	tables, err := FileSource{AdvisorsPath: advisorsCSV, DomainsPath: domainsYAML, AsOf: testAsOf}.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	a, ok := tables.AdvisorByRegistration("US111111")
	if !ok || a.Status != model.StatusActive || a.Jurisdiction != "US" {
		t.Errorf("unexpected advisor %+v", a)
	}
	if b, _ := tables.AdvisorByRegistration("US222222"); b.Status != model.StatusRevoked {
		t.Errorf("expected cancelled to map to revoked, got %s", b.Status)
	}

	d, ok := tables.Domain("fresh-gains.top")
	if !ok || !slices.Contains(d.Flags, "reported") {
		t.Errorf("expected reported flag, got %+v", d)
	}
	if got, _ := d.AgeDays(testAsOf); got != 12 {
		t.Errorf("AgeDays() = %d, want 12", got)
	}
}

func TestFileSource_Problems(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		desc    string
		file    string
		content string
		advisor bool
		want    string
	}{
		{
			desc:    "bad date",
			file:    "domains.csv",
			content: "domain,registrar,creation_date,country,flags\nbad.com,X,06/01/2024,US,\n",
			want:    "invalid creation_date",
		},
		{
			desc:    "missing column",
			file:    "advisors.csv",
			content: "registration_number,name\nIN1,A\n",
			advisor: true,
			want:    "missing columns",
		},
		{
			desc:    "wrong field count",
			file:    "advisors2.csv",
			content: "registration_number,name,status,registered_entity,jurisdiction\nIN1,A,active\n",
			advisor: true,
			want:    "wrong number of fields",
		},
		{
			desc:    "missing file",
			file:    "nope.csv",
			advisor: true,
			want:    "read advisors",
		},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			if tt.content != "" {
				writeFile(t, path, tt.content)
			}
			src := FileSource{DomainsPath: path, AsOf: testAsOf}
			if tt.advisor {
				src = FileSource{AdvisorsPath: path, AsOf: testAsOf}
			}

			_, err := src.Load(context.Background())
			if !errors.Is(err, model.ErrCatalog) {
				t.Fatalf("expected catalog error, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected %q in %v", tt.want, err)
			}
		})
	}
}

func TestFingerprint(t *testing.T) {
	a := loadDefault(t)
	b := loadDefault(t)
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("expected identical loads to share a fingerprint")
	}

	later, err := DefaultSource{AsOf: testAsOf.AddDate(0, 1, 0)}.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if later.Fingerprint() == a.Fingerprint() {
		t.Error("expected a different as-of date to change the fingerprint")
	}
}

func TestParseAsOf(t *testing.T) {
	if got, err := ParseAsOf(""); err != nil || !got.IsZero() {
		t.Errorf("ParseAsOf(\"\") = %v, %v", got, err)
	}
	if got, err := ParseAsOf("2024-06-01"); err != nil || !got.Equal(testAsOf) {
		t.Errorf("ParseAsOf() = %v, %v", got, err)
	}
	if _, err := ParseAsOf("June 1"); err == nil {
		t.Error("expected error for malformed date")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// fakeRows serves canned rows through the pgx.Rows interface
type fakeRows struct {
	rows [][]any
	i    int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return r.rows[r.i-1], nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	r.i++
	return r.i <= len(r.rows)
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.i-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: %d destinations for %d columns", len(dest), len(row))
	}
	for i, v := range row {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case **time.Time:
			if v != nil {
				tm := v.(time.Time)
				*d = &tm
			}
		case *[]string:
			*d = v.([]string)
		default:
			return fmt.Errorf("scan: unsupported destination %T", dest[i])
		}
	}
	return nil
}

type fakeQuerier struct {
	advisors [][]any
	domains  [][]any
	err      error
}

func (q fakeQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if q.err != nil {
		return nil, q.err
	}
	if strings.Contains(sql, "FROM advisors") {
		return &fakeRows{rows: q.advisors}, nil
	}
	return &fakeRows{rows: q.domains}, nil
}

func TestPostgresSource(t *testing.T) {
	q := fakeQuerier{
		advisors: [][]any{
			{"IN555555", "Meera Iyer", "Active", "Iyer Advisory", "IN"},
		},
		domains: [][]any{
			{"pump-signals.club", "Namecheap", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), "PA", []string{"Reported"}},
			{"nodate.com", "", nil, "", []string{}},
		},
	}

	tables, err := PostgresSource{Pool: q, AsOf: testAsOf}.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if a, ok := tables.AdvisorByRegistration("IN555555"); !ok || a.Status != model.StatusActive {
		t.Errorf("unexpected advisor %+v", a)
	}
	d, ok := tables.Domain("pump-signals.club")
	if age, _ := d.AgeDays(testAsOf); !ok || !slices.Contains(d.Flags, "reported") || age != 31 {
		t.Errorf("unexpected domain %+v", d)
	}
	nodate, _ := tables.Domain("nodate.com")
	if _, known := nodate.AgeDays(testAsOf); known {
		t.Error("expected unknown age for missing creation date")
	}
}

func TestPostgresSource_QueryError(t *testing.T) {
	_, err := PostgresSource{Pool: fakeQuerier{err: errors.New("connection refused")}}.Load(context.Background())
	if !errors.Is(err, model.ErrCatalog) {
		t.Fatalf("expected catalog error, got %v", err)
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("expected cause in error, got %v", err)
	}
}
