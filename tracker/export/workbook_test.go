package export_test

import (
	"bytes"
	"testing"
	"thesis_tracker/tracker/export"
	"thesis_tracker/tracker/schema"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func person(first, last, kind string) *schema.Account {
	return &schema.Account{Id: uuid.New(), FirstName: first, LastName: last, Kind: kind}
}

func member(account *schema.Account, role string, position int) schema.ThesisMember {
	return schema.ThesisMember{AccountId: account.Id, Role: role, Position: position, Account: account}
}

func TestWorkbookLayout(t *testing.T) {
	ada := person("Ada", "Lovelace", schema.Student)
	alan := person("Alan", "Turing", schema.Student)
	grace := person("Grace", "Hopper", schema.Student)
	adviser := person("Edsger", "Dijkstra", schema.Faculty)
	panelist := person("Barbara", "Liskov", schema.Faculty)

	theses := []schema.Thesis{
		{
			Id: uuid.New(), Title: "Analytical Engines", Phase: 1,
			Members: []schema.ThesisMember{
				member(ada, schema.AuthorRole, 0),
				member(alan, schema.AuthorRole, 1),
				member(adviser, schema.AdviserRole, 0),
				member(panelist, schema.PanelistRole, 0),
			},
		},
		{
			Id: uuid.New(), Title: "Compilers", Phase: 3,
			Members: []schema.ThesisMember{
				member(grace, schema.AuthorRole, 0),
				member(adviser, schema.AdviserRole, 0),
			},
		},
	}

	f, err := export.Workbook(theses, 3)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, export.Write(f, &buf))

	reopened, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, []string{"THSST1", "THSST2", "THSST3", "Thesis Groups"}, reopened.GetSheetList())

	rows, err := reopened.GetRows("THSST1")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Name", "Group", "Grade"}, rows[0])
	assert.Equal(t, []string{"Lovelace, Ada", "", "0.0"}, rows[1])
	assert.Equal(t, []string{"Turing, Alan", "", "0.0"}, rows[2])

	rows, err = reopened.GetRows("THSST2")
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	rows, err = reopened.GetRows("THSST3")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Hopper, Grace", rows[1][0])

	banner, err := reopened.GetCellValue("Thesis Groups", "D1")
	require.NoError(t, err)
	assert.Equal(t, "Member Information", banner)

	merged, err := reopened.GetMergeCells("Thesis Groups")
	require.NoError(t, err)
	ranges := make([]string, 0, len(merged))
	for _, m := range merged {
		ranges = append(ranges, m.GetStartAxis()+":"+m.GetEndAxis())
	}
	assert.ElementsMatch(t, []string{"A1:C1", "D1:H1", "I1:M1"}, ranges)

	rows, err = reopened.GetRows("Thesis Groups")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Group ID", rows[1][0])
	assert.Equal(t, "Panel Member 4", rows[1][12])

	first := rows[2]
	assert.Equal(t, theses[0].Id.String(), first[0])
	assert.Equal(t, "Analytical Engines", first[1])
	assert.Equal(t, "1", first[2])
	assert.Equal(t, "Lovelace, Ada", first[3])
	assert.Equal(t, "Turing, Alan", first[4])
	assert.Equal(t, "2", first[7])
	assert.Equal(t, "Dijkstra, Edsger", first[8])
	assert.Equal(t, "Liskov, Barbara", first[9])
}
