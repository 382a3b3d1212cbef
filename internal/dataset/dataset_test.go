package dataset

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Brownie44l1/house-price-api/internal/domain"
)

const socalSample = `image_id,street,citi,n_citi,bed,bath,sqft,price
0,1317 Van Buren Avenue,"Salton City, CA",317,3,2,1560,201900
1,124 C Street W,"Brawley, CA",48,3,2,713,228500
2,2304 Clark Road,"Imperial, CA",152,3,1,800,273950
`

func TestReadCSV(t *testing.T) {
	records, skipped, err := ReadCSV(context.Background(), strings.NewReader(socalSample))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(skipped) != 0 {
		t.Fatalf("expected no skipped rows, got %v", skipped)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	want := domain.HouseRecord{City: "Salton City, CA", Price: 201900, Sqft: 1560, Bed: 3, Bath: 2}
	if records[0] != want {
		t.Fatalf("expected %+v, got %+v", want, records[0])
	}
}

func TestReadCSVErrors(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"missing column": "city,price,sqft,bed\nA,1,2,3\n",
		"ragged row":     "city,price,sqft,bed,bath\nA,1,2\n",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			if _, _, err := ReadCSV(context.Background(), strings.NewReader(input)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestReadCSVSkipsUnparseableRows(t *testing.T) {
	input := "city,price,sqft,bed,bath\n" +
		"A,100000,1000,3,2\n" +
		"B,lots,1000,3,2\n" +
		"C,200000,,3,2\n" +
		"D,300000,1500,4,2.1\n"
	records, skipped, err := ReadCSV(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(records) != 2 || records[0].City != "A" || records[1].City != "D" {
		t.Fatalf("unexpected records %+v", records)
	}
	if len(skipped) != 2 || skipped[0].Line != 3 || skipped[1].Line != 4 {
		t.Fatalf("unexpected skipped rows %+v", skipped)
	}
	if !strings.HasPrefix(skipped[0].Err.Error(), "price:") || !strings.HasPrefix(skipped[1].Err.Error(), "sqft:") {
		t.Fatalf("skipped rows should name the column: %v / %v", skipped[0].Err, skipped[1].Err)
	}
}

func TestCSVSourceLogsSkippedRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "houses.csv")
	content := "citi,price,sqft,bed,bath\nA,100000,1000,3,2\nB,n/a,1000,3,2\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	core, logs := observer.New(zap.WarnLevel)
	records, err := NewCSVSource(zap.New(core), path).Load(context.Background())
	if err != nil || len(records) != 1 {
		t.Fatalf("expected 1 record, got %d (%v)", len(records), err)
	}
	entries := logs.FilterMessage("skipping dataset row").All()
	if len(entries) != 1 || entries[0].ContextMap()["line"] != int64(3) {
		t.Fatalf("expected one skipped-row warning for line 3, got %+v", entries)
	}
}

func TestCSVSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "socal2.csv")
	if err := os.WriteFile(path, []byte(socalSample), 0644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	records, err := NewCSVSource(zap.NewNop(), path).Load(context.Background())
	if err != nil || len(records) != 3 {
		t.Fatalf("expected 3 records, got %d (%v)", len(records), err)
	}
	if _, err := NewCSVSource(zap.NewNop(), filepath.Join(t.TempDir(), "missing.csv")).Load(context.Background()); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestSQLiteSourceRoundTrip(t *testing.T) {
	src, err := OpenSQLite(filepath.Join(t.TempDir(), "houses.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer src.Close()

	ctx := context.Background()
	in, _, err := ReadCSV(ctx, strings.NewReader(socalSample))
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if err := src.Replace(ctx, in); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if err := src.Replace(ctx, in); err != nil {
		t.Fatalf("second replace: %v", err)
	}
	out, err := src.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("expected %d records after replace, got %d", len(in), len(out))
	}
	if Fingerprint(out) != Fingerprint(in) {
		t.Fatalf("records changed in storage: %+v", out)
	}
}

func TestFingerprint(t *testing.T) {
	a := []domain.HouseRecord{{City: "A", Price: 1, Sqft: 2, Bed: 3, Bath: 1.1}}
	b := []domain.HouseRecord{{City: "A", Price: 1, Sqft: 2, Bed: 3, Bath: 1.2}}
	if Fingerprint(a) != Fingerprint(a) {
		t.Fatalf("fingerprint must be stable")
	}
	if Fingerprint(a) == Fingerprint(b) {
		t.Fatalf("fingerprint must change with the data")
	}
	if Fingerprint(nil) == Fingerprint(a) {
		t.Fatalf("empty dataset must not collide with a non-empty one")
	}
}

func TestStaticCopies(t *testing.T) {
	s := Static{{City: "A", Price: 1, Sqft: 1}}
	out, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	out[0].City = "B"
	if s[0].City != "A" {
		t.Fatalf("Static.Load must return a copy")
	}
}
