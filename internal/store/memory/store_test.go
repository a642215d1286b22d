package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"queueless/scheduling-service/internal/models"
	"queueless/scheduling-service/internal/store"
)

var queueDate = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func TestInTxRollbackDiscardsWrites(t *testing.T) {
	st := NewStore()
	boom := errors.New("boom")
	err := st.InTx(context.Background(), func(tx store.Tx) error {
		if _, _, err := tx.LockOrCreateQueue(context.Background(), models.ServiceQueue{ServiceID: "s-1", QueueDate: queueDate, Status: models.QueueActive}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, found, _ := st.GetQueue(context.Background(), "s-1", queueDate); found {
		t.Fatalf("expected rolled back queue to be absent")
	}
}

func TestInsertItemRejectsSecondOpenItem(t *testing.T) {
	st := NewStore()
	ctx := context.Background()
	var queueID string
	err := st.InTx(ctx, func(tx store.Tx) error {
		queue, created, err := tx.LockOrCreateQueue(ctx, models.ServiceQueue{ServiceID: "s-1", QueueDate: queueDate, Status: models.QueueActive})
		if err != nil {
			return err
		}
		if !created {
			t.Fatalf("expected queue to be created")
		}
		queueID = queue.QueueID
		return tx.InsertItem(ctx, models.QueueItem{ItemID: "i-1", QueueID: queueID, CustomerID: "c-1", TokenNumber: 1, Status: models.StatusWaiting})
	})
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}

	err = st.InTx(ctx, func(tx store.Tx) error {
		return tx.InsertItem(ctx, models.QueueItem{ItemID: "i-2", QueueID: queueID, CustomerID: "c-1", TokenNumber: 2, Status: models.StatusWaiting})
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	items, err := st.ListItems(ctx, queueID)
	if err != nil || len(items) != 1 {
		t.Fatalf("expected one item, got %d err=%v", len(items), err)
	}
}
