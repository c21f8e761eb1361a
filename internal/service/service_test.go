package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Siddarth2230/asset-labels/internal/allocator"
	"github.com/Siddarth2230/asset-labels/internal/backend"
	"github.com/Siddarth2230/asset-labels/internal/models"
	"github.com/Siddarth2230/asset-labels/internal/repository"
	"github.com/Siddarth2230/asset-labels/internal/service"
	"github.com/Siddarth2230/asset-labels/internal/testutil"
	"github.com/Siddarth2230/asset-labels/pkg/cache"
	"github.com/Siddarth2230/asset-labels/pkg/idgen"
)

type fixture struct {
	backend backend.Backend
	l1      *cache.LRUCache[*models.Item]
	items   *service.ItemService
	labels  *service.LabelService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b := testutil.SQLite(t)
	alloc, err := allocator.New(b, allocator.Options{})
	require.NoError(t, err)
	repo := repository.NewItemRepository(b, nil)
	l1 := cache.NewLRUCache[*models.Item](16)
	return &fixture{
		backend: b,
		l1:      l1,
		items:   service.NewItemService(b, repo, alloc, l1, nil, nil),
		labels:  service.NewLabelService(b, repo, alloc, nil),
	}
}

func ptr(s string) *string { return &s }

func TestCreateItemAllocatesLabels(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.items.CreateItem(ctx, models.CreateItemRequest{Name: "Drill", ModelNumber: ptr("DX-100")})
	require.NoError(t, err)
	assert.Equal(t, "0001", first.Label)
	assert.NotEmpty(t, first.ID)

	second, err := f.items.CreateItem(ctx, models.CreateItemRequest{Name: "Saw"})
	require.NoError(t, err)
	assert.Equal(t, "0002", second.Label)
}

func TestCreateItemWithPrintedLabel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sheet, err := f.labels.GenerateLabels(ctx, models.GenerateLabelsRequest{Quantity: 3, RecordType: "qr"})
	require.NoError(t, err)
	assert.Equal(t, []string{"0001", "0002", "0003"}, sheet.Labels)
	assert.Equal(t, "qr", sheet.RecordType)

	item, err := f.items.CreateItem(ctx, models.CreateItemRequest{Name: "Ladder", Label: " 2 "})
	require.NoError(t, err)
	assert.Equal(t, "0002", item.Label, "stored in canonical form")

	_, err = f.items.CreateItem(ctx, models.CreateItemRequest{Name: "Other", Label: "0002"})
	assert.ErrorIs(t, err, service.ErrLabelTaken)

	_, err = f.items.CreateItem(ctx, models.CreateItemRequest{Name: "Other", Label: "0009"})
	assert.ErrorIs(t, err, service.ErrLabelNotIssued)

	_, err = f.items.CreateItem(ctx, models.CreateItemRequest{Name: "Other", Label: "0000"})
	assert.ErrorIs(t, err, service.ErrLabelNotIssued)

	_, err = f.items.CreateItem(ctx, models.CreateItemRequest{Name: "Other", Label: "00I1"})
	assert.ErrorIs(t, err, idgen.ErrInvalidLabel)

	fresh, err := f.items.CreateItem(ctx, models.CreateItemRequest{Name: "Hammer"})
	require.NoError(t, err)
	assert.Equal(t, "0004", fresh.Label, "reserved sheet is skipped")
}

func TestGetItemByLabelUsesCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.items.CreateItem(ctx, models.CreateItemRequest{Name: "Drill", Remarks: ptr("blue case")})
	require.NoError(t, err)
	f.l1.Delete(created.Label)

	got, err := f.items.GetItemByLabel(ctx, "0001")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	require.NotNil(t, got.Remarks)
	assert.Equal(t, "blue case", *got.Remarks)
	assert.Nil(t, got.StorageLocation)
	assert.Equal(t, 1, f.l1.Len())

	cached, ok := f.l1.Get("0001")
	require.True(t, ok)
	assert.Equal(t, created.ID, cached.ID)

	got, err = f.items.GetItemByLabel(ctx, " 1\n")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}

func TestGetItemByLabelErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.items.GetItemByLabel(ctx, "0042")
	assert.ErrorIs(t, err, service.ErrItemNotFound)

	_, err = f.items.GetItemByLabel(ctx, "O0O1")
	assert.ErrorIs(t, err, idgen.ErrInvalidLabel)
}

func TestDeleteItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.items.CreateItem(ctx, models.CreateItemRequest{Name: "Drill"})
	require.NoError(t, err)

	require.NoError(t, f.items.DeleteItem(ctx, "0001"))
	_, ok := f.l1.Get("0001")
	assert.False(t, ok)

	_, err = f.items.GetItemByLabel(ctx, "0001")
	assert.ErrorIs(t, err, service.ErrItemNotFound)
	assert.ErrorIs(t, f.items.DeleteItem(ctx, "0001"), service.ErrItemNotFound)

	next, err := f.items.CreateItem(ctx, models.CreateItemRequest{Name: "Saw"})
	require.NoError(t, err)
	assert.Equal(t, "0002", next.Label, "deleted labels are never reissued")
}

func TestGenerateLabelsQuantity(t *testing.T) {
	f := newFixture(t)
	for _, q := range []int{0, -1, service.MaxBatch + 1} {
		_, err := f.labels.GenerateLabels(context.Background(), models.GenerateLabelsRequest{Quantity: q, RecordType: "qr"})
		assert.ErrorIs(t, err, service.ErrInvalidQuantity, "quantity %d", q)
	}

	for _, rt := range []string{"", "hologram", "QR"} {
		_, err := f.labels.GenerateLabels(context.Background(), models.GenerateLabelsRequest{Quantity: 1, RecordType: rt})
		assert.ErrorIs(t, err, service.ErrInvalidRecord, "record type %q", rt)
	}
	current, err := f.labels.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), current.Current, "rejected requests reserve nothing")

	resp, err := f.labels.GenerateLabels(context.Background(), models.GenerateLabelsRequest{Quantity: 1, RecordType: "nothing"})
	require.NoError(t, err)
	assert.Equal(t, "nothing", resp.RecordType)
}

func TestCheckLabel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.items.CreateItem(ctx, models.CreateItemRequest{Name: "Drill"})
	require.NoError(t, err)
	_, err = f.labels.GenerateLabels(ctx, models.GenerateLabelsRequest{Quantity: 1, RecordType: "qr"})
	require.NoError(t, err)

	info, err := f.labels.CheckLabel(ctx, "0001")
	require.NoError(t, err)
	assert.True(t, info.Issued)
	assert.True(t, info.Used)
	require.NotNil(t, info.ItemName)
	assert.Equal(t, "Drill", *info.ItemName)

	info, err = f.labels.CheckLabel(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, "0002", info.Label)
	assert.True(t, info.Issued)
	assert.False(t, info.Used)

	info, err = f.labels.CheckLabel(ctx, "ZZZZ")
	require.NoError(t, err)
	assert.False(t, info.Issued)
	assert.Equal(t, int64(34*34*34*34-1), info.Value)

	_, err = f.labels.CheckLabel(ctx, "")
	assert.ErrorIs(t, err, idgen.ErrInvalidLabel)
}

func TestListLabels(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.labels.GenerateLabels(ctx, models.GenerateLabelsRequest{Quantity: 5, RecordType: "qr"})
	require.NoError(t, err)
	_, err = f.items.CreateItem(ctx, models.CreateItemRequest{Name: "Drill", Label: "0003"})
	require.NoError(t, err)

	all, err := f.labels.ListLabels(ctx, "", "")
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "0001", all[0].Label)
	assert.True(t, all[2].Used)
	assert.False(t, all[3].Used)

	some, err := f.labels.ListLabels(ctx, "0002", "0099")
	require.NoError(t, err)
	require.Len(t, some, 4, "upper bound clamps to the counter")
	assert.Equal(t, "0002", some[0].Label)

	none, err := f.labels.ListLabels(ctx, "0004", "0002")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = f.labels.ListLabels(ctx, "00I0", "")
	assert.ErrorIs(t, err, idgen.ErrInvalidLabel)
}

func TestListLabelsRangeLimit(t *testing.T) {
	f := newFixture(t)
	testutil.SetCounter(t, f.backend, service.MaxExportRange+10)

	_, err := f.labels.ListLabels(context.Background(), "", "")
	assert.ErrorIs(t, err, service.ErrInvalidRange)

	infos, err := f.labels.ListLabels(context.Background(), "", idgen.NewEncoder(4).Encode(1200))
	require.NoError(t, err)
	assert.Len(t, infos, 1200, "spans several lookup chunks")
}

func TestExportLabels(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.items.CreateItem(ctx, models.CreateItemRequest{Name: "Drill"})
	require.NoError(t, err)
	_, err = f.labels.GenerateLabels(ctx, models.GenerateLabelsRequest{Quantity: 2, RecordType: "qr"})
	require.NoError(t, err)

	buf, err := f.labels.ExportLabels(ctx, "", "")
	require.NoError(t, err)

	xl, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer xl.Close()

	rows, err := xl.GetRows("Labels")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"label", "value", "used", "item_name"}, rows[0])
	assert.Equal(t, "0001", rows[1][0])
	assert.Equal(t, "Drill", rows[1][3])
	assert.Equal(t, "0003", rows[3][0])
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	st, err := f.labels.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", st.Backend)
	assert.Zero(t, st.Current)
	assert.Empty(t, st.LastLabel)

	_, err = f.labels.GenerateLabels(ctx, models.GenerateLabelsRequest{Quantity: 4, RecordType: "qr"})
	require.NoError(t, err)
	_, err = f.items.CreateItem(ctx, models.CreateItemRequest{Name: "Drill", Label: "0001"})
	require.NoError(t, err)

	st, err = f.labels.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), st.Current)
	assert.Equal(t, "0004", st.LastLabel)
	assert.Equal(t, int64(1), st.Items)
	assert.Equal(t, int64(3), st.Unused)
}
