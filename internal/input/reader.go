// Package input reads company/contact lists from CSV and Excel exports. The
// column layout is detected from the header, so CRM and Apollo exports load
// without reshaping.
package input

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/company-research/internal/model"
)

// Column aliases checked against lowercased, trimmed header cells.
var (
	companyColumns = []string{
		"company / account", "company/account", "company name",
		"company", "account", "firm", "organization",
	}
	personColumns = []string{
		"person", "person2", "contact", "name", "full name", "contact name",
	}
	firstNameColumns = []string{"first name", "firstname", "first"}
	lastNameColumns  = []string{"last name", "lastname", "last"}
	emailColumns     = []string{"email", "email address", "work email", "e-mail"}
	linkedinColumns  = []string{
		"person linkedin url", "person linkedin", "linkedin url",
		"linkedin", "linkedin profile",
	}
)

// Business descriptors are stripped from search names only while the name
// keeps two or more words, so "Churchill Asset Management" never collapses to
// just "Churchill".
var businessSuffixRe = regexp.MustCompile(`(?i)\s+(Group|Holdings|Partners|Capital|Management|` +
	`Advisors|Advisory|Investments|Asset Management|Private Debt|Private Credit)\s*$`)

// ReadCompanies reads a .csv or .xlsx contact export, groups rows by company,
// and deduplicates people. Companies are returned sorted by name.
func ReadCompanies(path string) ([]model.CompanyInput, error) {
	var rows [][]string
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		rows, err = readCSV(path)
	case ".xlsx", ".xls":
		rows, err = readXLSX(path)
	default:
		return nil, eris.Errorf("input: unsupported file format %q, use .csv or .xlsx", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, eris.New("input: file has no data rows")
	}

	return parseRows(rows)
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "input: open csv")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // ragged exports are common
	rows, err := r.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "input: read csv")
	}
	return rows, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "input: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("input: xlsx file has no sheets")
	}

	var rows [][]string
	for _, row := range f.Sheets[0].Rows {
		cells := make([]string, 0, len(row.Cells))
		for _, cell := range row.Cells {
			cells = append(cells, cell.String())
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// columnMap resolves header aliases to column indexes. -1 means not present.
type columnMap struct {
	company  int
	person   int
	first    int
	last     int
	email    int
	linkedin int
}

func detectColumns(header []string) (columnMap, error) {
	normalized := make(map[string]int, len(header))
	for i, cell := range header {
		normalized[strings.ToLower(strings.TrimSpace(cell))] = i
	}

	find := func(aliases []string) int {
		for _, alias := range aliases {
			if i, ok := normalized[alias]; ok {
				return i
			}
		}
		return -1
	}

	cols := columnMap{
		company:  find(companyColumns),
		person:   find(personColumns),
		first:    find(firstNameColumns),
		last:     find(lastNameColumns),
		email:    find(emailColumns),
		linkedin: find(linkedinColumns),
	}

	var problems []string
	if cols.company < 0 {
		problems = append(problems, "no company column (expected one of: "+strings.Join(companyColumns, ", ")+")")
	}
	if cols.person < 0 && (cols.first < 0 || cols.last < 0) {
		problems = append(problems, "no person column (expected one of: "+strings.Join(personColumns, ", ")+" or first/last name columns)")
	}
	if len(problems) > 0 {
		return columnMap{}, eris.New("input: " + strings.Join(problems, "; "))
	}
	return cols, nil
}

func parseRows(rows [][]string) ([]model.CompanyInput, error) {
	cols, err := detectColumns(rows[0])
	if err != nil {
		return nil, err
	}

	cell := func(row []string, i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	contactsByCompany := make(map[string][]model.Contact)
	for _, row := range rows[1:] {
		company := cell(row, cols.company)
		if isPlaceholder(company) {
			continue
		}

		person := cell(row, cols.person)
		if cols.person < 0 {
			person = strings.TrimSpace(cell(row, cols.first) + " " + cell(row, cols.last))
		}
		if isPlaceholder(person) {
			continue
		}
		person = cleanPersonName(person)

		contact := model.Contact{
			Name:        person,
			Email:       cell(row, cols.email),
			LinkedInURL: cell(row, cols.linkedin),
		}

		if hasContact(contactsByCompany[company], person) {
			continue
		}
		contactsByCompany[company] = append(contactsByCompany[company], contact)
	}

	if len(contactsByCompany) == 0 {
		return nil, eris.New("input: no valid company/person rows found")
	}

	names := make([]string, 0, len(contactsByCompany))
	for name := range contactsByCompany {
		names = append(names, name)
	}
	sort.Strings(names)

	companies := make([]model.CompanyInput, 0, len(names))
	for _, name := range names {
		contacts := contactsByCompany[name]
		people := make([]string, 0, len(contacts))
		for _, c := range contacts {
			people = append(people, c.Name)
		}
		companies = append(companies, model.CompanyInput{
			Name:       name,
			SearchName: SearchName(name),
			People:     people,
			Contacts:   contacts,
		})
	}
	return companies, nil
}

// SearchName strips corporate suffixes for cleaner queries: legal suffixes
// always, business descriptors only while the name keeps 2+ words.
func SearchName(name string) string {
	cleaned := model.CleanSearchName(name)
	cleaned = model.CleanSearchName(cleaned)

	for i := 0; i < 2; i++ {
		candidate := strings.TrimSpace(businessSuffixRe.ReplaceAllString(cleaned, ""))
		if len(strings.Fields(candidate)) < 2 {
			break
		}
		cleaned = candidate
	}

	if cleaned == "" {
		return name
	}
	return cleaned
}

// cleanPersonName drops "Unknown" placeholder parts that CRM exports use for
// missing name components.
func cleanPersonName(name string) string {
	parts := strings.Fields(name)
	kept := parts[:0:0]
	for _, part := range parts {
		if !strings.EqualFold(part, "unknown") {
			kept = append(kept, part)
		}
	}
	if len(kept) == 0 {
		return name
	}
	return strings.Join(kept, " ")
}

func isPlaceholder(value string) bool {
	switch strings.ToLower(value) {
	case "", "unknown", "nan", "n/a":
		return true
	}
	return false
}

func hasContact(contacts []model.Contact, name string) bool {
	for _, c := range contacts {
		if c.Name == name {
			return true
		}
	}
	return false
}
