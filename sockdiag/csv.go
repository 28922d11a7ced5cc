package sockdiag

import (
	"github.com/gocarina/gocsv"
)

// Row is the CSV-taggable flattening of a Msg, one row per socket, in the
// same convention the teacher's archival CSV writer used on its wire
// structs: dotted field names, bigquery-style grouping by struct.
type Row struct {
	Family  uint8  `csv:"IDM.Family"`
	State   uint8  `csv:"IDM.State"`
	SPort   uint16 `csv:"IDM.SockID.SPort"`
	DPort   uint16 `csv:"IDM.SockID.DPort"`
	SrcIP   string `csv:"IDM.SockID.Src"`
	DstIP   string `csv:"IDM.SockID.Dst"`
	Cookie  uint64 `csv:"IDM.SockID.Cookie"`
	Inode   uint32 `csv:"IDM.Inode"`
}

// NewRow flattens a decoded Msg into its CSV row representation.
func NewRow(m Msg) Row {
	return Row{
		Family: m.Family,
		State:  m.State,
		SPort:  m.ID.SrcPort,
		DPort:  m.ID.DstPort,
		SrcIP:  m.ID.Src.String(),
		DstIP:  m.ID.Dst.String(),
		Cookie: m.ID.Cookie,
		Inode:  m.Inode,
	}
}

// DumpCSV renders a batch of decoded messages as CSV, one row per socket,
// the way the teacher's csvtool dumps inetdiag structs for offline
// analysis.
func DumpCSV(msgs []Msg) (string, error) {
	rows := make([]Row, len(msgs))
	for i, m := range msgs {
		rows[i] = NewRow(m)
	}
	return gocsv.MarshalString(&rows)
}
