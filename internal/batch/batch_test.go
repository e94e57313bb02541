package batch

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadintake/internal/config"
	"leadintake/internal/constants"
	"leadintake/internal/dedup"
	"leadintake/internal/lead"
	"leadintake/internal/lead/leadtest"
	"leadintake/internal/logger"
	"leadintake/internal/notify"
	"leadintake/internal/writer"
	"leadintake/pkg/cel"
	"leadintake/pkg/errors"
)

var nextGenHeader = []string{"purchase_id", "first_name", "last_name", "phone", "email", "city", "product", "price"}

func buildCSV(t *testing.T, header []string, rows ...[]string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	require.NoError(t, w.Write(header))
	for _, r := range rows {
		require.NoError(t, w.Write(r))
	}
	w.Flush()
	require.NoError(t, w.Error())
	return &buf
}

type person struct {
	first, last, phone, email string
}

func fakePerson(f *gofakeit.Faker) person {
	return person{
		first: f.FirstName(),
		last:  f.LastName(),
		phone: f.Numerify("208#######"),
		email: f.Email(),
	}
}

func (p person) row(id, product, price string) []string {
	return []string{id, p.first, p.last, p.phone, p.email, "Boise", product, price}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(_ context.Context, _ string, ev notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func newImporter(t *testing.T, repo *leadtest.MemoryRepository, notifier Notifier, cfg config.BatchConfig) *Importer {
	t.Helper()
	detectors, err := NewDetectors(nil, nil)
	require.NoError(t, err)
	w := writer.New(repo, dedup.NewResolver(), nil, nil, logger.NopLogger())
	return NewImporter(w, dedup.NewResolver(), detectors, notifier, cfg, logger.NopLogger())
}

func find(t *testing.T, repo *leadtest.MemoryRepository, vendorLeadID string) *lead.Lead {
	t.Helper()
	for _, l := range repo.All() {
		if l.VendorLeadID == vendorLeadID {
			return l
		}
	}
	t.Fatalf("no lead stored for %s", vendorLeadID)
	return nil
}

func TestImport_GroupsPrimaryAndAddons(t *testing.T) {
	f := gofakeit.New(7)
	jane, other := fakePerson(f), fakePerson(f)

	repo := leadtest.NewMemoryRepository()
	imp := newImporter(t, repo, nil, config.BatchConfig{})

	file := buildCSV(t, nextGenHeader,
		jane.row("P1", "", "10"),
		jane.row("P1", constants.ProductAddon, "5"),
		jane.row("P1", constants.ProductAddon, "7"),
		other.row("P2", "", "20"),
	)
	res, err := imp.Import(context.Background(), "t1", "leads.csv", file, "")
	require.NoError(t, err)

	assert.Equal(t, constants.DefaultVendor, res.Vendor)
	assert.Equal(t, "nextgen_fingerprint", res.DetectedBy)
	assert.NotEmpty(t, res.BatchID)
	assert.Equal(t, Stats{Imported: 2, Processed: 4}, res.Stats)

	require.Equal(t, 2, repo.Len())
	assert.Equal(t, 2, repo.Inserts)

	p1 := find(t, repo, "P1")
	require.NotNil(t, p1.Price)
	assert.InDelta(t, 22.0, *p1.Price, 0.001)
	assert.Len(t, p1.LineItems, 3)
	assert.Equal(t, lead.KindPrimary, p1.LineItems[0].Kind)
	assert.Equal(t, jane.first+" "+jane.last, p1.Name)

	p2 := find(t, repo, "P2")
	require.NotNil(t, p2.Price)
	assert.InDelta(t, 20.0, *p2.Price, 0.001)
}

func TestImport_EqualAddonsAreEachSummed(t *testing.T) {
	jane := fakePerson(gofakeit.New(5))
	repo := leadtest.NewMemoryRepository()
	imp := newImporter(t, repo, nil, config.BatchConfig{})

	rows := [][]string{
		jane.row("P1", "", "10"),
		jane.row("P1", constants.ProductAddon, "5"),
		jane.row("P1", constants.ProductAddon, "5"),
	}
	res, err := imp.Import(context.Background(), "t1", "leads.csv", buildCSV(t, nextGenHeader, rows...), "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.Imported)

	p1 := find(t, repo, "P1")
	require.NotNil(t, p1.Price)
	assert.InDelta(t, 20.0, *p1.Price, 0.001)
	assert.Len(t, p1.LineItems, 3)
	assert.Contains(t, p1.Notes, "Total Price: $20.00")

	_, err = imp.Import(context.Background(), "t1", "leads.csv", buildCSV(t, nextGenHeader, rows...), "")
	require.NoError(t, err)
	assert.InDelta(t, 20.0, *find(t, repo, "P1").Price, 0.001)
}

func TestImport_AddonBeforePrimaryConverges(t *testing.T) {
	f := gofakeit.New(11)
	jane := fakePerson(f)

	repoA, repoB := leadtest.NewMemoryRepository(), leadtest.NewMemoryRepository()
	_, err := newImporter(t, repoA, nil, config.BatchConfig{}).Import(context.Background(), "t1", "a.csv",
		buildCSV(t, nextGenHeader, jane.row("P1", "", "10"), jane.row("P1", constants.ProductAddon, "5")), "")
	require.NoError(t, err)
	_, err = newImporter(t, repoB, nil, config.BatchConfig{}).Import(context.Background(), "t1", "b.csv",
		buildCSV(t, nextGenHeader, jane.row("P1", constants.ProductAddon, "5"), jane.row("P1", "", "10")), "")
	require.NoError(t, err)

	a, b := find(t, repoA, "P1"), find(t, repoB, "P1")
	assert.Equal(t, a.LineItems, b.LineItems)
	assert.Equal(t, *a.Price, *b.Price)
	assert.Equal(t, a.Name, b.Name)
}

func TestImport_ReimportDoesNotSumTwice(t *testing.T) {
	f := gofakeit.New(3)
	jane := fakePerson(f)
	repo := leadtest.NewMemoryRepository()
	imp := newImporter(t, repo, nil, config.BatchConfig{})

	rows := [][]string{jane.row("P1", "", "10"), jane.row("P1", constants.ProductAddon, "5")}
	_, err := imp.Import(context.Background(), "t1", "leads.csv", buildCSV(t, nextGenHeader, rows...), "")
	require.NoError(t, err)

	res, err := imp.Import(context.Background(), "t1", "leads.csv", buildCSV(t, nextGenHeader, rows...), "")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Stats.Imported)
	assert.Equal(t, 1, res.Stats.Updated+res.Stats.Unchanged)

	require.Equal(t, 1, repo.Len())
	assert.InDelta(t, 15.0, *find(t, repo, "P1").Price, 0.001)
}

func TestImport_SkipsRowsWithoutContact(t *testing.T) {
	f := gofakeit.New(5)
	jane := fakePerson(f)
	repo := leadtest.NewMemoryRepository()
	imp := newImporter(t, repo, nil, config.BatchConfig{})

	file := buildCSV(t, nextGenHeader,
		jane.row("P1", "", "10"),
		[]string{"P9", "No", "Contact", "", "", "Boise", "", "3"},
	)
	res, err := imp.Import(context.Background(), "t1", "leads.csv", file, "")
	require.NoError(t, err)

	assert.Equal(t, Stats{Imported: 1, Processed: 2, Skipped: 1}, res.Stats)
	assert.Equal(t, 1, repo.Len())
}

func TestImport_FailedGroupDoesNotAbortBatch(t *testing.T) {
	f := gofakeit.New(9)
	repo := leadtest.NewMemoryRepository()
	repo.BeforeInsert = func(l *lead.Lead) error {
		if l.VendorLeadID == "P2" {
			return fmt.Errorf("disk full")
		}
		return nil
	}
	imp := newImporter(t, repo, nil, config.BatchConfig{WriteConcurrency: 1})

	file := buildCSV(t, nextGenHeader,
		fakePerson(f).row("P1", "", "10"),
		fakePerson(f).row("P2", "", "10"),
		fakePerson(f).row("P3", "", "10"),
	)
	res, err := imp.Import(context.Background(), "t1", "leads.csv", file, "")
	require.NoError(t, err)

	assert.Equal(t, 2, res.Stats.Imported)
	assert.Equal(t, 1, res.Stats.Failed)
	assert.Equal(t, 2, repo.Len())
}

func TestImport_NotifyEach(t *testing.T) {
	f := gofakeit.New(13)
	for _, notifyEach := range []bool{false, true} {
		t.Run(fmt.Sprintf("notify_each=%v", notifyEach), func(t *testing.T) {
			n := &recordingNotifier{}
			imp := newImporter(t, leadtest.NewMemoryRepository(), n, config.BatchConfig{NotifyEach: notifyEach})

			file := buildCSV(t, nextGenHeader, fakePerson(f).row("P1", "", "10"), fakePerson(f).row("P2", "", "12"))
			_, err := imp.Import(context.Background(), "t1", "leads.csv", file, "")
			require.NoError(t, err)

			if !notifyEach {
				assert.Empty(t, n.events)
				return
			}
			require.Len(t, n.events, 2)
			for _, ev := range n.events {
				assert.True(t, ev.IsNew)
				assert.NotEmpty(t, ev.LeadID)
				assert.Equal(t, constants.DefaultVendor, ev.Source)
			}
		})
	}
}

func TestImport_UnknownVendor(t *testing.T) {
	repo := leadtest.NewMemoryRepository()
	imp := newImporter(t, repo, nil, config.BatchConfig{})
	header := []string{"Contact Phone", "Full Name"}

	_, err := imp.Import(context.Background(), "t1", "upload.csv", buildCSV(t, header, []string{"2085551234", "Jane Doe"}), "")
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Contains(t, err.Error(), "vendor override")
	assert.Equal(t, 0, repo.Len())

	res, err := imp.Import(context.Background(), "t1", "upload.csv",
		buildCSV(t, []string{"phone", "full_name"}, []string{"2085551234", "Jane Doe"}), "Acme")
	require.NoError(t, err)
	assert.Equal(t, "Acme", res.Vendor)
	assert.Equal(t, "override", res.DetectedBy)
	assert.Equal(t, 1, res.Stats.Imported)
}

func TestImport_MaxRows(t *testing.T) {
	f := gofakeit.New(17)
	imp := newImporter(t, leadtest.NewMemoryRepository(), nil, config.BatchConfig{MaxRows: 2})

	file := buildCSV(t, nextGenHeader,
		fakePerson(f).row("P1", "", "1"),
		fakePerson(f).row("P2", "", "1"),
		fakePerson(f).row("P3", "", "1"),
	)
	_, err := imp.Import(context.Background(), "t1", "leads.csv", file, "")
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestParse(t *testing.T) {
	t.Run("bom, blank rows and line numbers", func(t *testing.T) {
		in := "\uFEFFphone , email\n2085551234,a@example.com\n,\n\n2085559999,\n"
		sheet, err := Parse(strings.NewReader(in), 0)
		require.NoError(t, err)

		assert.Equal(t, []string{"phone", "email"}, sheet.Headers)
		require.Len(t, sheet.Rows, 2)
		assert.Equal(t, 2, sheet.Rows[0].Line)
		assert.Equal(t, "a@example.com", sheet.Rows[0].Values["email"])
		assert.Equal(t, "2085559999", sheet.Rows[1].Values["phone"])
		assert.Equal(t, 5, sheet.Rows[1].Line)
	})

	t.Run("short rows are tolerated", func(t *testing.T) {
		sheet, err := Parse(strings.NewReader("a,b,c\n1\n"), 0)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"a": "1"}, sheet.Rows[0].Values)
	})

	t.Run("windows-1252 upload", func(t *testing.T) {
		sheet, err := Parse(strings.NewReader("first_name,city\nJos\xe9,Coeur d\x92Alene\n"), 0)
		require.NoError(t, err)
		assert.Equal(t, "José", sheet.Rows[0].Values["first_name"])
		assert.Equal(t, "Coeur d’Alene", sheet.Rows[0].Values["city"])
	})

	t.Run("empty", func(t *testing.T) {
		_, err := Parse(strings.NewReader(""), 0)
		assert.True(t, errors.IsValidation(err))

		_, err = Parse(strings.NewReader("a,b\n"), 0)
		assert.True(t, errors.IsValidation(err))
	})

	t.Run("too many rows", func(t *testing.T) {
		_, err := Parse(strings.NewReader("a\n1\n2\n3\n"), 2)
		require.Error(t, err)
		assert.True(t, errors.IsValidation(err))
	})
}

func TestDetect(t *testing.T) {
	eval, err := cel.NewEvaluator()
	require.NoError(t, err)
	detectors, err := NewDetectors([]config.DetectorConfig{
		{Name: "quotewizard", Vendor: "QuoteWizard", Expression: `"qw_id" in headers`},
	}, eval)
	require.NoError(t, err)

	tests := []struct {
		name       string
		sample     Sample
		override   string
		wantVendor string
		wantBy     string
	}{
		{"override wins", Sample{Headers: []string{"purchase_id"}}, "marketplace", constants.MarketplaceVendor, "override"},
		{"configured detector first", Sample{Headers: []string{"qw_id", "purchase_id"}}, "", "QuoteWizard", "quotewizard"},
		{"nextgen fingerprint", Sample{Headers: []string{"vertical_id"}}, "", constants.DefaultVendor, "nextgen_fingerprint"},
		{"marketplace fingerprint", Sample{Headers: []string{"primaryPhone"}}, "", constants.MarketplaceVendor, "marketplace_fingerprint"},
		{"filename hint", Sample{Headers: []string{"phone"}, Filename: "/tmp/Marketplace-2026-01.csv"}, "", constants.MarketplaceVendor, "filename_marketplace"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vendor, by, err := Detect(detectors, tt.sample, tt.override)
			require.NoError(t, err)
			assert.Equal(t, tt.wantVendor, vendor)
			assert.Equal(t, tt.wantBy, by)
		})
	}

	vendor, _, err := Detect(detectors, Sample{Headers: []string{"phone"}, Filename: "upload.csv"}, "")
	assert.Equal(t, Unknown, vendor)
	assert.True(t, errors.IsValidation(err))
}

func TestNewDetectors_RejectsBadExpression(t *testing.T) {
	eval, err := cel.NewEvaluator()
	require.NoError(t, err)

	_, err = NewDetectors([]config.DetectorConfig{{Name: "bad", Vendor: "X", Expression: `headers.size()`}}, eval)
	assert.Error(t, err)

	_, err = NewDetectors([]config.DetectorConfig{{Name: "x", Vendor: "X", Expression: `true`}}, nil)
	assert.Error(t, err)
}

func TestVendorContext(t *testing.T) {
	assert.Equal(t, Unknown, VendorFrom(context.Background()))
	assert.Equal(t, "NextGen", VendorFrom(WithVendor(context.Background(), "NextGen")))
}

func TestNormalize_MarketplaceFieldMap(t *testing.T) {
	ctx := WithVendor(context.Background(), constants.MarketplaceVendor)
	f := Normalize(ctx, map[string]string{
		"leadID":       "M-1",
		"firstName":    "Jane",
		"lastName":     "Doe",
		"primaryPhone": "1-208-555-1234",
		"stateCode":    "id",
		"isPregnant":   "no",
		"utm_source":   "facebook",
	})

	assert.Equal(t, "M-1", f.VendorLeadID)
	assert.Equal(t, "Jane Doe", f.Name)
	assert.Equal(t, "(208) 555-1234", f.Phone)
	assert.Equal(t, "ID", f.State)
	require.NotNil(t, f.Pregnant)
	assert.False(t, *f.Pregnant)
	assert.Equal(t, constants.MarketplaceVendor, f.Source)
	assert.Equal(t, map[string]string{"utm_source": "facebook"}, f.VendorData)
}

func TestFieldMap_ApplyIsDeterministic(t *testing.T) {
	m := FieldMap{"lead_id": "lead_id", "purchase_id": "lead_id"}
	for i := 0; i < 20; i++ {
		raw, extra := m.Apply(map[string]string{"purchase_id": "P", "lead_id": "L", "extra": "x"})
		assert.Equal(t, "L", raw["lead_id"])
		assert.Equal(t, map[string]string{"extra": "x"}, extra)
	}
}
