package roster_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nakiaasuryanto/bday-bot/internal/config"
	"github.com/nakiaasuryanto/bday-bot/internal/roster"
)

const addressBook = `BEGIN:VCARD
VERSION:4.0
FN:Ani Lestari
TEL;TYPE=cell:+62 812-3456
BDAY:19980510
END:VCARD
BEGIN:VCARD
VERSION:3.0
N:Santoso;Budi;;;
BDAY:1990-01-05T00:00:00Z
END:VCARD
BEGIN:VCARD
VERSION:3.0
FN:No Year
BDAY:--0229
END:VCARD
BEGIN:VCARD
VERSION:3.0
FN:No Birthday
END:VCARD
BEGIN:VCARD
VERSION:3.0
FN:Garbage
BDAY:sometime in may
END:VCARD
`

var team = roster.Target{GroupID: "G1", GroupName: "Team", Role: "Staff"}

func TestParseVCards(t *testing.T) {
	entries, stats, err := roster.ParseVCards(context.Background(), strings.NewReader(addressBook), team)
	require.NoError(t, err)

	assert.Equal(t, 5, stats.Cards)
	assert.Equal(t, 3, stats.Skipped)
	require.Len(t, entries, 2)

	assert.Equal(t, "Ani Lestari", entries[0].Name)
	assert.Equal(t, "1998-05-10", entries[0].BirthDate)
	assert.Equal(t, "628123456", entries[0].PhoneTag)
	assert.Equal(t, "Staff", entries[0].Role)
	assert.Equal(t, "G1", entries[0].GroupID)

	assert.Equal(t, "Budi Santoso", entries[1].Name)
	assert.Equal(t, "1990-01-05", entries[1].BirthDate)
	assert.Empty(t, entries[1].PhoneTag)
}

func TestParseVCards_BrokenStream(t *testing.T) {
	for _, in := range []string{
		"this is not a vcard",
		"this is not a vcard\n",
		"garbage\r\nmore garbage\r\n",
	} {
		entries, stats, err := roster.ParseVCards(context.Background(), strings.NewReader(in), team)
		require.Error(t, err, "%q", in)
		assert.Contains(t, err.Error(), config.ErrVCardParse)
		assert.Empty(t, entries)
		assert.Zero(t, stats.Cards)
	}
}

func TestParseVCards_EmptyInput(t *testing.T) {
	for _, in := range []string{"", "\r\n  \n"} {
		entries, stats, err := roster.ParseVCards(context.Background(), strings.NewReader(in), team)
		require.NoError(t, err, "%q", in)
		assert.Empty(t, entries)
		assert.Zero(t, stats.Cards)
	}
}

func TestStore_ImportRejectsNonVCard(t *testing.T) {
	s := writeRoster(t, `[]`)

	_, err := s.Import(context.Background(), strings.NewReader("garbage\r\nmore garbage\r\n"), team)
	require.Error(t, err)

	records, err := s.Records(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStore_ImportSkipsDuplicates(t *testing.T) {
	s := writeRoster(t, `[
  {
    "nama": "Ani Lestari",
    "tanggal_lahir": "1998-05-10",
    "grup_id": "G9",
    "grup_nama": "Old"
  }
]`)
	ctx := context.Background()

	stats, err := s.Import(ctx, strings.NewReader(addressBook), team)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Imported)
	assert.Equal(t, 1, stats.Duplicate)

	res, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, res.Valid, 2)
	assert.Equal(t, "G9", res.Valid[0].GroupID, "existing record untouched")
	assert.Equal(t, "Budi Santoso", res.Valid[1].Name)

	again, err := s.Import(ctx, strings.NewReader(addressBook), team)
	require.NoError(t, err)
	assert.Zero(t, again.Imported)
}
