package input

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contacts.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadCompanies_CSV(t *testing.T) {
	t.Parallel()

	path := writeCSV(t, `Company / Account,Person,Email,LinkedIn URL
Zenith Credit Partners LLC,Jane Doe,jane@zenith.com,https://linkedin.com/in/jane
Apex Capital LP,Bob Roe,bob@apex.com,
Apex Capital LP,Bob Roe,bob@apex.com,
Apex Capital LP,Ann Poe,,
,Orphan Person,,
Apex Capital LP,Unknown,,
`)

	companies, err := ReadCompanies(path)
	require.NoError(t, err)
	require.Len(t, companies, 2)

	// Sorted by company name.
	apex := companies[0]
	assert.Equal(t, "Apex Capital LP", apex.Name)
	assert.Equal(t, "Apex Capital", apex.SearchName)
	assert.Equal(t, []string{"Bob Roe", "Ann Poe"}, apex.People) // duplicate Bob dropped
	assert.Equal(t, "bob@apex.com", apex.Contacts[0].Email)

	zenith := companies[1]
	assert.Equal(t, "Zenith Credit Partners LLC", zenith.Name)
	require.Len(t, zenith.Contacts, 1)
	assert.Equal(t, "https://linkedin.com/in/jane", zenith.Contacts[0].LinkedInURL)
}

func TestReadCompanies_FirstLastColumns(t *testing.T) {
	t.Parallel()

	path := writeCSV(t, `Company,First Name,Last Name,Work Email
Apex Capital,Bob,Roe,bob@apex.com
Apex Capital,Carla Unknown,Smith,
`)

	companies, err := ReadCompanies(path)
	require.NoError(t, err)
	require.Len(t, companies, 1)
	assert.Equal(t, []string{"Bob Roe", "Carla Smith"}, companies[0].People)
	assert.Equal(t, "bob@apex.com", companies[0].Contacts[0].Email)
}

func TestReadCompanies_XLSX(t *testing.T) {
	t.Parallel()

	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Contacts")
	require.NoError(t, err)
	for _, row := range [][]string{
		{"Firm", "Contact"},
		{"Apex Capital", "Bob Roe"},
		{"Apex Capital", "Ann Poe"},
	} {
		r := sheet.AddRow()
		for _, value := range row {
			r.AddCell().Value = value
		}
	}
	path := filepath.Join(t.TempDir(), "contacts.xlsx")
	require.NoError(t, file.Save(path))

	companies, err := ReadCompanies(path)
	require.NoError(t, err)
	require.Len(t, companies, 1)
	assert.Equal(t, "Apex Capital", companies[0].Name)
	assert.Equal(t, []string{"Bob Roe", "Ann Poe"}, companies[0].People)
}

func TestReadCompanies_Errors(t *testing.T) {
	t.Parallel()

	t.Run("unsupported extension", func(t *testing.T) {
		t.Parallel()
		_, err := ReadCompanies("contacts.txt")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported file format")
	})

	t.Run("missing columns", func(t *testing.T) {
		t.Parallel()
		path := writeCSV(t, "Foo,Bar\na,b\n")
		_, err := ReadCompanies(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "company column")
	})

	t.Run("header only", func(t *testing.T) {
		t.Parallel()
		path := writeCSV(t, "Company,Person\n")
		_, err := ReadCompanies(path)
		require.Error(t, err)
	})

	t.Run("all rows invalid", func(t *testing.T) {
		t.Parallel()
		path := writeCSV(t, "Company,Person\nunknown,Jane\nApex,nan\n")
		_, err := ReadCompanies(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no valid company/person rows")
	})
}

func TestSearchName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"Zenith Credit Partners LLC", "Zenith Credit"},
		{"Churchill Asset Management", "Churchill Asset"}, // never collapses to one word
		{"Apex Capital LP", "Apex Capital"},
		{"Foo Capital Partners", "Foo Capital"},
		{"Blackstone", "Blackstone"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SearchName(tt.in), tt.in)
	}
}

func TestCleanPersonName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Brechnitz", cleanPersonName("Brechnitz Unknown"))
	assert.Equal(t, "Jane Doe", cleanPersonName("Jane Doe"))
	assert.Equal(t, "Unknown Unknown", cleanPersonName("Unknown Unknown")) // nothing left to keep
}
