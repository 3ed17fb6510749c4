package nws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const snowStatement = `000
NOUS41 KILN 151400
PNSILN

Public Information Statement
National Weather Service Wilmington OH
900 AM EST Sun Feb 15 2026

...SNOWFALL REPORTS...

**METADATA**
:2/15/2026,0700 AM,OH,Franklin,2 NW Columbus,40.02,-83.05,SNOW_24,5.0,Inch,CO-OP Observer,24 hour total
:2/15/2026,0715 AM,OH,Delaware,Sunbury, Galena Road,40.24,-82.86,Snow,4.2,Inch,Public,
:2/15/2026,0730 AM,OH,Licking,Nowhere,,,SNOW,3.0,Inch,Public,no coordinates
not a metadata line
$$
:2/15/2026,0800 AM,OH,Fairfield,After End,39.71,-82.60,SNOW,2.0,Inch,Public,
`

func TestParseMetadata(t *testing.T) {
	entries := ParseMetadata(snowStatement)
	require.Len(t, entries, 2)

	assert.Equal(t, Entry{
		Date:        "2/15/2026",
		Time:        "0700 AM",
		State:       "OH",
		County:      "Franklin",
		Location:    "2 NW Columbus",
		Lat:         40.02,
		Lon:         -83.05,
		Type:        "SNOW_24",
		Magnitude:   "5.0",
		Unit:        "Inch",
		Provider:    "CO-OP Observer",
		Description: "24 hour total",
	}, entries[0])

	assert.Equal(t, "Sunbury, Galena Road", entries[1].Location, "location may contain commas")
	assert.Equal(t, "Snow", entries[1].Type)
	assert.Empty(t, entries[1].Description)
}

func TestParseMetadata_NoSection(t *testing.T) {
	assert.Nil(t, ParseMetadata("...TORNADO DAMAGE SURVEY...\nEF1 confirmed.\n$$"))
}

func TestParseMetadata_EndsAtAmpersands(t *testing.T) {
	text := "*****METADATA*****\n:4/26/2026,0310 PM,TX,Tarrant,3 N Keller,32.98,-97.25,TORNADO,,,NWS Storm Survey,EF1\n&&\n:x,y,TX,Tarrant,Z,32.9,-97.2,HAIL,1.0,Inch,Public,after end"
	entries := ParseMetadata(text)
	require.Len(t, entries, 1)
	assert.Equal(t, "TORNADO", entries[0].Type)
	assert.Equal(t, "NWS Storm Survey", entries[0].Provider)
}

func TestTypeCode(t *testing.T) {
	tests := map[string]string{
		"SNOW_24":        "S",
		"snow":           "S",
		"Freezing Rain":  "5",
		"PEAK-WIND":      "O",
		"24 HR SNOWFALL": "S",
		"HAIL":           "H",
		"TORNADO":        "T",
		"SLEET":          "s",
		"":               "",
		"VOLCANIC ASH":   "",
	}
	for in, want := range tests {
		assert.Equal(t, want, TypeCode(in), "type %q", in)
	}
}

func TestEntry_Feature(t *testing.T) {
	e := ParseMetadata(snowStatement)[0]
	p := Product{ID: "abc-123", IssuingOffice: "KILN", IssuanceTime: time.Date(2026, 2, 15, 14, 0, 0, 0, time.UTC)}

	f := e.Feature(p)
	r := f.Report()
	assert.Equal(t, "S", r.Type)
	assert.Equal(t, "5", r.Magnitude)
	assert.Equal(t, "ILN", r.WFO)
	assert.Equal(t, "Franklin", r.County)
	assert.Equal(t, time.Date(2026, 2, 15, 14, 0, 0, 0, time.UTC), r.Valid)
	assert.True(t, r.HasCoords)
	assert.InDelta(t, 40.02, r.Lat, 1e-9)

	var reported string
	require.NoError(t, json.Unmarshal(f.Properties["reported"], &reported))
	assert.Equal(t, "2/15/2026 0700 AM", reported)

	_, ok := f.Identity()
	assert.True(t, ok)
}
