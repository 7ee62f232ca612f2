package yml

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"slices"
	"time"

	"aeroport/internal/objstore"
	"aeroport/internal/payload"
)

const mtimeLayout = "02.01.2006 15:04"

var (
	// FeedInfoSchema is the summary sent before a feed's records.
	FeedInfoSchema = payload.NewSchema("feedinfo",
		"shop_name", "total_count", "categories_count", "offers_count",
		"filesize", "file_last_updated", "file_last_updated_formatted")

	// FeedParsingResultSchema is sent after a feed is exhausted so consumers
	// can drop records that are no longer present.
	FeedParsingResultSchema = payload.NewSchema("feedparsingresult",
		"shop_name", "offers_id_list", "categories_id_list")
)

// Counts holds a quick tally of record start tags.
type Counts struct {
	Categories int
	Offers     int
}

func (c Counts) Total() int { return c.Categories + c.Offers }

// Of returns the tally for the given record types.
func (c Counts) Of(types ...ItemType) int {
	n := 0
	for _, t := range types {
		switch t {
		case TypeCategory:
			n += c.Categories
		case TypeOffer:
			n += c.Offers
		}
	}
	return n
}

// CountRecords scans r in chunks counting "<category " and "<offer ". It does
// not parse XML, so it is fast and approximate.
func CountRecords(ctx context.Context, r io.Reader) (Counts, error) {
	cats := &tagCounter{tag: []byte("<category ")}
	offers := &tagCounter{tag: []byte("<offer ")}
	buf := make([]byte, 256*1024)
	for {
		if err := ctx.Err(); err != nil {
			return Counts{}, err
		}
		n, err := r.Read(buf)
		if n > 0 {
			cats.feed(buf[:n])
			offers.feed(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return Counts{}, fmt.Errorf("count records: %w", err)
		}
	}
	return Counts{Categories: cats.n, Offers: offers.n}, nil
}

// tagCounter counts occurrences across chunk boundaries by carrying the last
// len(tag)-1 bytes forward.
type tagCounter struct {
	tag  []byte
	tail []byte
	n    int
}

func (c *tagCounter) feed(chunk []byte) {
	data := append(c.tail, chunk...)
	c.n += bytes.Count(data, c.tag)
	keep := min(len(c.tag)-1, len(data))
	c.tail = append(c.tail[:0:0], data[len(data)-keep:]...)
}

// NewFeedInfo builds the summary payload for a stored feed file.
func NewFeedInfo(shopName string, counts Counts, info objstore.ObjectInfo) *payload.Payload {
	p := FeedInfoSchema.New()
	p.MustSet("shop_name", shopName)
	p.MustSet("categories_count", counts.Categories)
	p.MustSet("offers_count", counts.Offers)
	p.MustSet("total_count", counts.Total())
	p.MustSet("filesize", float64(info.Size)/1024/1024)
	p.MustSet("file_last_updated", info.ModTime.Unix())
	p.MustSet("file_last_updated_formatted", info.ModTime.In(time.Local).Format(mtimeLayout))
	return p
}

// NewFeedParsingResult builds the closing payload with sorted id lists.
func NewFeedParsingResult(shopName string, categoryIDs, offerIDs map[string]struct{}) *payload.Payload {
	p := FeedParsingResultSchema.New()
	p.MustSet("shop_name", shopName)
	p.MustSet("categories_id_list", sortedKeys(categoryIDs))
	p.MustSet("offers_id_list", sortedKeys(offerIDs))
	return p
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
