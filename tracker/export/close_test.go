package export

import (
	"io"
	"testing"
	"thesis_tracker/tracker/schema"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func countCloses(t *testing.T) *int {
	closed := 0
	original := closeWorkbook
	closeWorkbook = func(f *excelize.File) error {
		closed++
		return original(f)
	}
	t.Cleanup(func() { closeWorkbook = original })
	return &closed
}

func TestWorkbookClosedOnError(t *testing.T) {
	closed := countCloses(t)

	theses := []schema.Thesis{{Id: uuid.New(), Title: "Out Of Range", Phase: 4}}

	f, err := Workbook(theses, 3)
	assert.Error(t, err)
	assert.Nil(t, f)
	assert.Equal(t, 1, *closed)
}

func TestWorkbookClosedAfterWrite(t *testing.T) {
	closed := countCloses(t)

	f, err := Workbook(nil, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, *closed)

	require.NoError(t, Write(f, io.Discard))
	assert.Equal(t, 1, *closed)
}
