package reftable

import (
	"bytes"
	"context"
	"embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/riskwatch/internal/model"
)

//go:embed seed/advisors.csv seed/domains.csv
var seedFS embed.FS

// Source produces reference tables
type Source interface {
	Load(ctx context.Context) (*Tables, error)
}

// LoadReferenceTables loads tables from src
func LoadReferenceTables(ctx context.Context, src Source) (*Tables, error) {
	return src.Load(ctx)
}

// FileSource reads the advisor registry and domain table from CSV files,
// or YAML files when the extension is .yaml or .yml. An empty path yields an
// empty table. A zero AsOf means today (UTC).
type FileSource struct {
	AdvisorsPath string
	DomainsPath  string
	AsOf         time.Time
}

func (s FileSource) Load(ctx context.Context) (*Tables, error) {
	var advisors []model.AdvisorRecord
	var domains []model.DomainRecord

	if s.AdvisorsPath != "" {
		data, err := os.ReadFile(s.AdvisorsPath)
		if err != nil {
			return nil, &model.CatalogError{Source: s.AdvisorsPath, Err: fmt.Errorf("read advisors: %w", err)}
		}
		if advisors, err = parseAdvisors(s.AdvisorsPath, data); err != nil {
			return nil, err
		}
	}

	if s.DomainsPath != "" {
		data, err := os.ReadFile(s.DomainsPath)
		if err != nil {
			return nil, &model.CatalogError{Source: s.DomainsPath, Err: fmt.Errorf("read domains: %w", err)}
		}
		if domains, err = parseDomains(s.DomainsPath, data); err != nil {
			return nil, err
		}
	}

	return New(s.AdvisorsPath+","+s.DomainsPath, advisors, domains, asOfOrToday(s.AsOf))
}

// DefaultSource yields the embedded seed registry and domain table
type DefaultSource struct {
	AsOf time.Time
}

func (s DefaultSource) Load(ctx context.Context) (*Tables, error) {
	advData, err := seedFS.ReadFile("seed/advisors.csv")
	if err != nil {
		return nil, fmt.Errorf("read embedded advisors: %w", err)
	}
	domData, err := seedFS.ReadFile("seed/domains.csv")
	if err != nil {
		return nil, fmt.Errorf("read embedded domains: %w", err)
	}

	advisors, err := parseAdvisors("seed/advisors.csv", advData)
	if err != nil {
		return nil, err
	}
	domains, err := parseDomains("seed/domains.csv", domData)
	if err != nil {
		return nil, err
	}
	return New("default", advisors, domains, asOfOrToday(s.AsOf))
}

func asOfOrToday(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

// ParseAsOf parses a YYYY-MM-DD reference date; empty yields the zero time
func ParseAsOf(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid as-of date %q (want YYYY-MM-DD): %w", s, err)
	}
	return t, nil
}

// advisorRow and domainRow are the flat on-disk record forms
type advisorRow struct {
	RegistrationNumber string `yaml:"registration_number"`
	Name               string `yaml:"name"`
	Status             string `yaml:"status"`
	RegisteredEntity   string `yaml:"registered_entity"`
	Jurisdiction       string `yaml:"jurisdiction"`
}

type domainRow struct {
	Domain       string   `yaml:"domain"`
	Registrar    string   `yaml:"registrar"`
	CreationDate string   `yaml:"creation_date"`
	Country      string   `yaml:"country"`
	Flags        []string `yaml:"flags"`
}

var (
	advisorColumns = []string{"registration_number", "name", "status", "registered_entity", "jurisdiction"}
	domainColumns  = []string{"domain", "registrar", "creation_date", "country", "flags"}
)

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func parseAdvisors(source string, data []byte) ([]model.AdvisorRecord, error) {
	var rows []advisorRow
	if isYAML(source) {
		if err := yaml.Unmarshal(data, &rows); err != nil {
			return nil, &model.CatalogError{Source: source, Err: fmt.Errorf("decode advisors: %w", err)}
		}
	} else {
		records, err := readCSV(source, data, advisorColumns)
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			rows = append(rows, advisorRow{
				RegistrationNumber: r["registration_number"],
				Name:               r["name"],
				Status:             r["status"],
				RegisteredEntity:   r["registered_entity"],
				Jurisdiction:       r["jurisdiction"],
			})
		}
	}

	out := make([]model.AdvisorRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.AdvisorRecord{
			RegistrationNumber: r.RegistrationNumber,
			Name:               r.Name,
			Status:             model.ParseAdvisorStatus(r.Status),
			RegisteredEntity:   strings.TrimSpace(r.RegisteredEntity),
			Jurisdiction:       strings.ToUpper(strings.TrimSpace(r.Jurisdiction)),
		})
	}
	return out, nil
}

func parseDomains(source string, data []byte) ([]model.DomainRecord, error) {
	var rows []domainRow
	if isYAML(source) {
		if err := yaml.Unmarshal(data, &rows); err != nil {
			return nil, &model.CatalogError{Source: source, Err: fmt.Errorf("decode domains: %w", err)}
		}
	} else {
		records, err := readCSV(source, data, domainColumns)
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			rows = append(rows, domainRow{
				Domain:       r["domain"],
				Registrar:    r["registrar"],
				CreationDate: r["creation_date"],
				Country:      r["country"],
				Flags:        splitFlags(r["flags"]),
			})
		}
	}

	var problems []string
	out := make([]model.DomainRecord, 0, len(rows))
	for i, r := range rows {
		rec := model.DomainRecord{
			Domain:    r.Domain,
			Registrar: strings.TrimSpace(r.Registrar),
			Country:   strings.ToUpper(strings.TrimSpace(r.Country)),
			Flags:     normalizeFlags(r.Flags),
		}
		if date := strings.TrimSpace(r.CreationDate); date != "" {
			created, err := time.Parse(DateLayout, date)
			if err != nil {
				problems = append(problems, fmt.Sprintf("row %d (%s): invalid creation_date %q", i+1, r.Domain, date))
				continue
			}
			rec.CreationDate = created
		}
		out = append(out, rec)
	}
	if len(problems) > 0 {
		return nil, &model.CatalogError{Source: source, Problems: problems}
	}
	return out, nil
}

// readCSV reads a headed CSV into column-keyed rows. Required columns must be
// present in the header; rows with the wrong field count are load errors.
func readCSV(source string, data []byte, columns []string) ([]map[string]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.TrimLeadingSpace = true
	r.Comment = '#'

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, &model.CatalogError{Source: source, Err: fmt.Errorf("read header: %w", err)}
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	var missing []string
	for _, c := range columns {
		if _, ok := index[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, &model.CatalogError{Source: source, Problems: []string{"missing columns: " + strings.Join(missing, ", ")}}
	}

	var rows []map[string]string
	var problems []string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		row := make(map[string]string, len(columns))
		for _, c := range columns {
			row[c] = strings.TrimSpace(rec[index[c]])
		}
		rows = append(rows, row)
	}
	if len(problems) > 0 {
		return nil, &model.CatalogError{Source: source, Problems: problems}
	}
	return rows, nil
}

func splitFlags(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == '|' || r == ';' || r == ','
	})
}

func normalizeFlags(flags []string) []string {
	var out []string
	for _, f := range flags {
		f = strings.ToLower(strings.TrimSpace(f))
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
