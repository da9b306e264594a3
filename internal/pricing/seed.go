package pricing

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

// CSV column names.
const (
	ColItemID            = "itemId"
	ColAssetID           = "assetId"
	ColCollectibleItemID = "collectibleItemId"
	ColID                = "id"
	ColName              = "name"
	ColPricePicked       = "pricePicked"
	ColPrice             = "price"
	ColCollectible       = "collectible"
)

// SeedHeader is the header of files written by SeedWriter.
var SeedHeader = []string{ColItemID, ColName, ColPricePicked, ColCollectible}

// id columns in lookup priority order
var idColumns = []string{ColItemID, ColAssetID, ColCollectibleItemID, ColID}

// SeedRow is one priced row of the seed dump.
type SeedRow struct {
	ItemID      int64
	Name        string
	Price       int64
	Collectible bool
}

// Seed is an in-memory index of a price dump, by numeric id and by
// case-folded name. First occurrence wins for both indexes.
type Seed struct {
	byID   map[int64]SeedRow
	byName map[string]SeedRow
}

// NewSeed creates an empty seed.
func NewSeed() *Seed {
	return &Seed{
		byID:   make(map[int64]SeedRow),
		byName: make(map[string]SeedRow),
	}
}

func foldName(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

// Add indexes a row under its id and name.
func (s *Seed) Add(row SeedRow) {
	s.addID(row.ItemID, row)
	if key := foldName(row.Name); key != "" {
		if _, ok := s.byName[key]; !ok {
			s.byName[key] = row
		}
	}
}

func (s *Seed) addID(id int64, row SeedRow) {
	if id <= 0 {
		return
	}
	if _, ok := s.byID[id]; !ok {
		s.byID[id] = row
	}
}

// Lookup matches by id first, then by case-folded name.
func (s *Seed) Lookup(id int64, name string) (SeedRow, bool) {
	if s == nil {
		return SeedRow{}, false
	}
	if row, ok := s.byID[id]; ok {
		return row, true
	}
	if key := foldName(name); key != "" {
		row, ok := s.byName[key]
		return row, ok
	}
	return SeedRow{}, false
}

// Len returns the number of indexed ids.
func (s *Seed) Len() int {
	if s == nil {
		return 0
	}
	return len(s.byID)
}

// LoadSeed reads a seed file. A missing file yields an empty seed.
func LoadSeed(path string) (*Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewSeed(), nil
		}
		return nil, fmt.Errorf("failed to open price seed: %w", err)
	}
	defer f.Close()

	seed, err := ReadSeed(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read price seed %s: %w", path, err)
	}
	return seed, nil
}

// ReadSeed parses a seed CSV. Rows without a parseable price are skipped.
func ReadSeed(r io.Reader) (*Seed, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	seed := NewSeed()

	first, err := cr.Read()
	if err == io.EOF {
		return seed, nil
	}
	if err != nil {
		return nil, err
	}

	cols, isHeader := columnIndex(first)
	if !isHeader {
		seed.addRecord(first, cols)
	}

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		seed.addRecord(rec, cols)
	}
	return seed, nil
}

// columnIndex maps column names to positions. A record is a header when it
// names at least one known column and holds no integer field; otherwise the
// canonical order is assumed.
func columnIndex(rec []string) (map[string]int, bool) {
	known := map[string]string{}
	for _, name := range []string{ColItemID, ColAssetID, ColCollectibleItemID, ColID, ColName, ColPricePicked, ColPrice, ColCollectible} {
		known[strings.ToLower(name)] = name
	}

	cols := make(map[string]int)
	numeric := false
	for i, field := range rec {
		if _, err := strconv.ParseInt(strings.TrimSpace(field), 10, 64); err == nil {
			numeric = true
		}
		field = strings.TrimPrefix(strings.TrimSpace(field), "\ufeff")
		if name, ok := known[strings.ToLower(field)]; ok {
			if _, dup := cols[name]; !dup {
				cols[name] = i
			}
		}
	}
	if len(cols) > 0 && !numeric {
		return cols, true
	}

	canonical := make(map[string]int, len(SeedHeader))
	for i, name := range SeedHeader {
		canonical[name] = i
	}
	return canonical, false
}

func (s *Seed) addRecord(rec []string, cols map[string]int) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	priceCol := field(ColPricePicked)
	if priceCol == "" {
		priceCol = field(ColPrice)
	}
	price, ok := ParsePriceString(priceCol)
	if !ok || price < 0 {
		return
	}

	row := SeedRow{
		Name:        field(ColName),
		Price:       price,
		Collectible: strings.EqualFold(field(ColCollectible), restrictionTag),
	}

	var ids []int64
	for _, col := range idColumns {
		if id, err := strconv.ParseInt(field(col), 10, 64); err == nil && id > 0 {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		if key := foldName(row.Name); key != "" {
			if _, ok := s.byName[key]; !ok {
				s.byName[key] = row
			}
		}
		return
	}

	row.ItemID = ids[0]
	s.Add(row)
	for _, id := range ids[1:] {
		s.addID(id, row)
	}
}

// SeedWriter appends rows in canonical column order.
type SeedWriter struct {
	f *os.File
	w *csv.Writer
}

// NewSeedWriter opens path for writing. In truncate mode, or in append mode
// on an empty file, the header is written first.
func NewSeedWriter(path string, appendMode bool) (*SeedWriter, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open price csv: %w", err)
	}

	sw := &SeedWriter{f: f, w: csv.NewWriter(f)}

	writeHeader := !appendMode
	if appendMode {
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to stat price csv: %w", err)
		}
		writeHeader = info.Size() == 0
	}
	if writeHeader {
		if err := sw.w.Write(SeedHeader); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write price csv header: %w", err)
		}
	}
	return sw, nil
}

// Write writes one row. A nil price leaves pricePicked empty.
func (sw *SeedWriter) Write(id int64, name string, price *int64, collectible bool) error {
	priceField := ""
	if price != nil {
		priceField = strconv.FormatInt(*price, 10)
	}
	collectibleField := ""
	if collectible {
		collectibleField = restrictionTag
	}
	return sw.w.Write([]string{strconv.FormatInt(id, 10), name, priceField, collectibleField})
}

// Close flushes buffered rows and closes the file.
func (sw *SeedWriter) Close() error {
	sw.w.Flush()
	if err := sw.w.Error(); err != nil {
		sw.f.Close()
		return fmt.Errorf("failed to flush price csv: %w", err)
	}
	return sw.f.Close()
}
