// Package archive exports a campaign's event log and rendered turns as
// zstd-compressed JSON lines, and reads such archives back.
//
// An archive is a header line followed by one line per event record in
// log order, then one line per rendered turn in turn order.
package archive

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/roach88/saga/internal/domain"
	"github.com/roach88/saga/internal/event"
	"github.com/roach88/saga/internal/reducer"
	"github.com/roach88/saga/internal/rules"
	"github.com/roach88/saga/internal/store"
)

// FormatV1 identifies the archive layout.
const FormatV1 = "saga-archive/v1"

// Entry types.
const (
	TypeHeader   = "header"
	TypeEvent    = "event"
	TypeRendered = "rendered"
)

// maxLine bounds a single JSON line when reading.
const maxLine = 8 * 1024 * 1024

// ErrMalformed is returned for archives that do not follow the layout.
var ErrMalformed = errors.New("malformed archive")

// Header describes the archived campaign.
type Header struct {
	Format        string          `json:"format"`
	Campaign      domain.Campaign `json:"campaign"`
	EventCount    int             `json:"event_count"`
	RenderedCount int             `json:"rendered_count"`
	ExportedAt    time.Time       `json:"exported_at"`
}

// Entry is one line of an archive.
type Entry struct {
	Type     string               `json:"type"`
	Header   *Header              `json:"header,omitempty"`
	Record   *event.Record        `json:"record,omitempty"`
	Rendered *domain.RenderedTurn `json:"rendered,omitempty"`
}

// Archive is a fully read archive.
type Archive struct {
	Header   Header
	Records  []event.Record
	Rendered []domain.RenderedTurn
}

// Export writes campaignID's full log, hidden events included, to w. All
// rows are read in one transaction so the archive is consistent.
func Export(ctx context.Context, st *store.Store, campaignID string, w io.Writer, now time.Time) (Header, error) {
	var (
		h        Header
		records  []event.Record
		rendered []domain.RenderedTurn
	)
	err := st.WithTx(ctx, func(tx *store.Tx) error {
		c, err := tx.GetCampaign(ctx, campaignID)
		if err != nil {
			return err
		}
		if records, err = tx.GetEvents(ctx, campaignID, -1, true); err != nil {
			return err
		}
		if rendered, err = tx.ListRenderedTurns(ctx, campaignID, 0, 0); err != nil {
			return err
		}
		h = Header{
			Format:        FormatV1,
			Campaign:      c,
			EventCount:    len(records),
			RenderedCount: len(rendered),
			ExportedAt:    now.UTC(),
		}
		return nil
	})
	if err != nil {
		return Header{}, fmt.Errorf("export: %w", err)
	}

	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return Header{}, fmt.Errorf("export: %w", err)
	}
	bw := bufio.NewWriterSize(enc, 128*1024)
	write := func(e Entry) error {
		b, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if _, err := bw.Write(b); err != nil {
			return err
		}
		return bw.WriteByte('\n')
	}

	if err := write(Entry{Type: TypeHeader, Header: &h}); err != nil {
		enc.Close()
		return Header{}, fmt.Errorf("export header: %w", err)
	}
	for i := range records {
		if err := write(Entry{Type: TypeEvent, Record: &records[i]}); err != nil {
			enc.Close()
			return Header{}, fmt.Errorf("export event %d: %w", records[i].ID, err)
		}
	}
	for i := range rendered {
		if err := write(Entry{Type: TypeRendered, Rendered: &rendered[i]}); err != nil {
			enc.Close()
			return Header{}, fmt.Errorf("export turn %d: %w", rendered[i].TurnNumber, err)
		}
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return Header{}, fmt.Errorf("export: %w", err)
	}
	if err := enc.Close(); err != nil {
		return Header{}, fmt.Errorf("export: %w", err)
	}
	return h, nil
}

// Read decodes an archive and checks it against its header counts.
func Read(r io.Reader) (Archive, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return Archive{}, fmt.Errorf("read archive: %w", err)
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), maxLine)

	var (
		a      Archive
		header bool
		line   int
	)
	for sc.Scan() {
		line++
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return Archive{}, fmt.Errorf("line %d: %w", line, err)
		}
		switch {
		case line == 1 && e.Type == TypeHeader && e.Header != nil:
			if e.Header.Format != FormatV1 {
				return Archive{}, fmt.Errorf("%w: unsupported format %q", ErrMalformed, e.Header.Format)
			}
			a.Header = *e.Header
			header = true
		case line > 1 && e.Type == TypeEvent && e.Record != nil:
			if len(a.Rendered) > 0 {
				return Archive{}, fmt.Errorf("%w: line %d: event after rendered turns", ErrMalformed, line)
			}
			a.Records = append(a.Records, *e.Record)
		case line > 1 && e.Type == TypeRendered && e.Rendered != nil:
			a.Rendered = append(a.Rendered, *e.Rendered)
		default:
			return Archive{}, fmt.Errorf("%w: line %d: unexpected %q entry", ErrMalformed, line, e.Type)
		}
	}
	if err := sc.Err(); err != nil {
		return Archive{}, fmt.Errorf("read archive: %w", err)
	}
	if !header {
		return Archive{}, fmt.Errorf("%w: missing header", ErrMalformed)
	}
	if len(a.Records) != a.Header.EventCount || len(a.Rendered) != a.Header.RenderedCount {
		return Archive{}, fmt.Errorf("%w: header lists %d events and %d turns, found %d and %d",
			ErrMalformed, a.Header.EventCount, a.Header.RenderedCount, len(a.Records), len(a.Rendered))
	}
	return a, nil
}

// Fold replays the archived log from an empty state. Turns that appended
// no events still count through their rendered rows.
func (a Archive) Fold(opts rules.Options) reducer.State {
	s := reducer.New(opts).Reduce(reducer.InitialState(), a.Records)
	for _, rt := range a.Rendered {
		s.TurnNumber = max(s.TurnNumber, rt.TurnNumber)
	}
	return s
}
