package feastore

import (
	"fmt"
	"sync"
	"testing"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry(t.TempDir(), Config{})
	if err := reg.Startup(); err != nil {
		t.Fatalf("Startup: %v", err)
	}
	return reg
}

func scoreSchema() TableSchema {
	return TableSchema{
		Key: "key",
		Columns: map[string]ColumnSchema{
			"key":   {DType: DTypeUtf8, Nullable: false},
			"score": {DType: DTypeFloat32, Nullable: true},
		},
	}
}

func scoreBatch(t *testing.T, keys []string, scores []float32) *Batch {
	t.Helper()
	b, err := NewBatch([]string{"key", "score"}, map[string]Array{
		"key":   NewUtf8Array(keys),
		"score": NewFloat32Array(scores),
	})
	if err != nil {
		t.Fatalf("NewBatch: %v", err)
	}
	return b
}

// S1 — basic round-trip.
func TestScenarioBasicRoundTrip(t *testing.T) {
	reg := newTestRegistry(t)
	if err := reg.Create("features", scoreSchema()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := reg.Write("features", scoreBatch(t, []string{"a", "b", "c"}, []float32{1, 2, 3})); err != nil {
		t.Fatalf("Write: %v", err)
	}

	batch, err := reg.Read("features", []string{"c", "a"}, []string{"score"})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	score, _ := batch.Column("score")
	want := []float32{3.0, 1.0}
	for i, w := range want {
		if !score.IsValid(i) || score.Float32Values[i] != w {
			t.Errorf("row %d: got %v valid=%v, want %v", i, score.Float32Values[i], score.IsValid(i), w)
		}
	}
}

// S2 — missing keys intermix.
func TestScenarioMissingKeysIntermix(t *testing.T) {
	reg := newTestRegistry(t)
	if err := reg.Create("features", scoreSchema()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := reg.Write("features", scoreBatch(t, []string{"a", "b", "c"}, []float32{1, 2, 3})); err != nil {
		t.Fatalf("Write: %v", err)
	}

	batch, err := reg.Read("features", []string{"c", "zz", "a", "qq"}, []string{"score"})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	score, _ := batch.Column("score")
	if batch.NumRows != 4 {
		t.Fatalf("got %d rows, want 4", batch.NumRows)
	}
	if !score.IsValid(0) || score.Float32Values[0] != 3.0 {
		t.Errorf("row 0: got %v valid=%v", score.Float32Values[0], score.IsValid(0))
	}
	if score.IsValid(1) {
		t.Error("row 1: expected null for missing key")
	}
	if !score.IsValid(2) || score.Float32Values[2] != 1.0 {
		t.Errorf("row 2: got %v valid=%v", score.Float32Values[2], score.IsValid(2))
	}
	if score.IsValid(3) {
		t.Error("row 3: expected null for missing key")
	}
}

// S3 — multi-segment last-wins.
func TestScenarioMultiSegmentLastWins(t *testing.T) {
	reg := newTestRegistry(t)
	if err := reg.Create("features", scoreSchema()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := reg.Write("features", scoreBatch(t, []string{"a", "b"}, []float32{1, 2})); err != nil {
		t.Fatalf("Write segment 0: %v", err)
	}
	if err := reg.Write("features", scoreBatch(t, []string{"a", "c"}, []float32{10, 3})); err != nil {
		t.Fatalf("Write segment 1: %v", err)
	}

	batch, err := reg.Read("features", []string{"a", "b", "c"}, []string{"score"})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	score, _ := batch.Column("score")
	want := []float32{10.0, 2.0, 3.0}
	for i, w := range want {
		if !score.IsValid(i) || score.Float32Values[i] != w {
			t.Errorf("row %d: got %v valid=%v, want %v", i, score.Float32Values[i], score.IsValid(i), w)
		}
	}
}

// S4 — null propagation.
func TestScenarioNullPropagation(t *testing.T) {
	reg := newTestRegistry(t)
	schema := TableSchema{
		Key: "key",
		Columns: map[string]ColumnSchema{
			"key":   {DType: DTypeUtf8, Nullable: false},
			"label": {DType: DTypeUtf8, Nullable: true},
		},
	}
	if err := reg.Create("labels", schema); err != nil {
		t.Fatalf("Create: %v", err)
	}

	labelArr := NewUtf8Array([]string{"hot", "", "cold", "warm"})
	labelArr.setValid(1, false)
	batch, err := NewBatch([]string{"key", "label"}, map[string]Array{
		"key":   NewUtf8Array([]string{"a", "b", "c", "d"}),
		"label": labelArr,
	})
	if err != nil {
		t.Fatalf("NewBatch: %v", err)
	}
	if err := reg.Write("labels", batch); err != nil {
		t.Fatalf("Write: %v", err)
	}

	result, err := reg.Read("labels", []string{"b", "a", "d", "c"}, []string{"label"})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	label, _ := result.Column("label")
	if label.IsValid(0) {
		t.Error("row 0 (b): expected null")
	}
	if !label.IsValid(1) || label.Utf8Values[1] != "hot" {
		t.Errorf("row 1 (a): got %q valid=%v", label.Utf8Values[1], label.IsValid(1))
	}
	if !label.IsValid(2) || label.Utf8Values[2] != "warm" {
		t.Errorf("row 2 (d): got %q valid=%v", label.Utf8Values[2], label.IsValid(2))
	}
	if !label.IsValid(3) || label.Utf8Values[3] != "cold" {
		t.Errorf("row 3 (c): got %q valid=%v", label.Utf8Values[3], label.IsValid(3))
	}
}

// S5 — mixed types, reordered request.
func TestScenarioMixedTypesReorderedRequest(t *testing.T) {
	reg := newTestRegistry(t)
	schema := TableSchema{
		Key: "key",
		Columns: map[string]ColumnSchema{
			"key":   {DType: DTypeUtf8, Nullable: false},
			"score": {DType: DTypeFloat32, Nullable: false},
			"label": {DType: DTypeUtf8, Nullable: false},
		},
	}
	if err := reg.Create("mixed", schema); err != nil {
		t.Fatalf("Create: %v", err)
	}
	batch, err := NewBatch([]string{"key", "score", "label"}, map[string]Array{
		"key":   NewUtf8Array([]string{"a", "b", "c", "d"}),
		"score": NewFloat32Array([]float32{1, 2, 3, 4}),
		"label": NewUtf8Array([]string{"w", "x", "y", "z"}),
	})
	if err != nil {
		t.Fatalf("NewBatch: %v", err)
	}
	if err := reg.Write("mixed", batch); err != nil {
		t.Fatalf("Write: %v", err)
	}

	result, err := reg.Read("mixed", []string{"d", "a", "c", "b"}, []string{"label", "score"})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if result.Names[0] != "label" || result.Names[1] != "score" {
		t.Fatalf("got column order %v, want [label score]", result.Names)
	}
	label, _ := result.Column("label")
	wantLabels := []string{"z", "w", "y", "x"}
	for i, w := range wantLabels {
		if label.Utf8Values[i] != w {
			t.Errorf("label row %d: got %q, want %q", i, label.Utf8Values[i], w)
		}
	}
}

// S6 — restart recovery.
func TestScenarioRestartRecovery(t *testing.T) {
	root := t.TempDir()

	reg1 := NewRegistry(root, Config{})
	if err := reg1.Startup(); err != nil {
		t.Fatalf("Startup: %v", err)
	}
	if err := reg1.Create("users", scoreSchema()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := reg1.Write("users", scoreBatch(t, []string{"a", "b"}, []float32{1, 2})); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := reg1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reg2 := NewRegistry(root, Config{})
	if err := reg2.Startup(); err != nil {
		t.Fatalf("Startup: %v", err)
	}
	defer reg2.Close()

	batch, err := reg2.Read("users", []string{"a", "b"}, []string{"score"})
	if err != nil {
		t.Fatalf("Read after restart: %v", err)
	}
	score, _ := batch.Column("score")
	if !score.IsValid(0) || score.Float32Values[0] != 1.0 {
		t.Errorf("row 0: got %v valid=%v", score.Float32Values[0], score.IsValid(0))
	}
	if !score.IsValid(1) || score.Float32Values[1] != 2.0 {
		t.Errorf("row 1: got %v valid=%v", score.Float32Values[1], score.IsValid(1))
	}
}

func TestRegistryCreateDuplicateFails(t *testing.T) {
	reg := newTestRegistry(t)
	if err := reg.Create("t", scoreSchema()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := reg.Create("t", scoreSchema()); !IsTableAlreadyExists(err) {
		t.Fatalf("got %v, want TableAlreadyExists", err)
	}
}

func TestRegistryWriteUnknownTableFails(t *testing.T) {
	reg := newTestRegistry(t)
	err := reg.Write("nope", scoreBatch(t, []string{"a"}, []float32{1}))
	if !IsTableNotFound(err) {
		t.Fatalf("got %v, want TableNotFound", err)
	}
}

func TestRegistryReadEmptyTableReturnsNoData(t *testing.T) {
	reg := newTestRegistry(t)
	if err := reg.Create("empty", scoreSchema()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err := reg.Read("empty", []string{"a"}, []string{"score"})
	if err != ErrNoData {
		t.Fatalf("got %v, want ErrNoData", err)
	}
}

func TestRegistryReadUnknownColumnFails(t *testing.T) {
	reg := newTestRegistry(t)
	if err := reg.Create("t", scoreSchema()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := reg.Write("t", scoreBatch(t, []string{"a"}, []float32{1})); err != nil {
		t.Fatalf("Write: %v", err)
	}
	_, err := reg.Read("t", []string{"a"}, []string{"nonexistent"})
	if err == nil {
		t.Fatal("expected error for unknown column")
	}
}

func TestRegistryListTablesAndGetSchema(t *testing.T) {
	reg := newTestRegistry(t)
	if err := reg.Create("t1", scoreSchema()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	tables := reg.ListTables()
	if _, ok := tables["t1"]; !ok {
		t.Fatal("expected t1 in list")
	}
	schema, err := reg.GetSchema("t1")
	if err != nil {
		t.Fatalf("GetSchema: %v", err)
	}
	if schema.Key != "key" {
		t.Errorf("got key %q", schema.Key)
	}
	if _, err := reg.GetSchema("missing"); !IsTableNotFound(err) {
		t.Fatalf("got %v, want TableNotFound", err)
	}
}

// Concurrent writers to distinct tables, concurrent readers of a stable
// table, exercising the registry's per-table write serialization and the
// reader-snapshot-clone-without-lock read path (spec.md §5).
func TestRegistryConcurrentWritesAndReads(t *testing.T) {
	reg := newTestRegistry(t)
	if err := reg.Create("hot", scoreSchema()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := reg.Write("hot", scoreBatch(t, []string{"a"}, []float32{1})); err != nil {
		t.Fatalf("seed write: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 64)

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("concurrent-%d", i)
			if err := reg.Create(name, scoreSchema()); err != nil {
				errs <- err
				return
			}
			if err := reg.Write(name, scoreBatch(t, []string{"x"}, []float32{float32(i)})); err != nil {
				errs <- err
			}
		}(i)
	}
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := reg.Read("hot", []string{"a"}, []string{"score"}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent operation failed: %v", err)
	}
}

// TestRegistryConcurrentReadDuringWrite writes new segments to the same
// table that other goroutines are concurrently reading from, which is the
// only shape of concurrency that can actually reach the in-flight-snapshot
// hazard: a reader holding the TableView that was current when its Read
// started must keep gathering from valid (still-mapped) segment memory
// even if a writer installs and releases a newer view in the meantime
// (spec.md §3 "readers in flight keep using the previous snapshot", §5,
// GLOSSARY "Reader snapshot"). Run with -race to catch a use-after-munmap.
func TestRegistryConcurrentReadDuringWrite(t *testing.T) {
	reg := newTestRegistry(t)
	if err := reg.Create("churn", scoreSchema()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := reg.Write("churn", scoreBatch(t, []string{"a"}, []float32{0})); err != nil {
		t.Fatalf("seed write: %v", err)
	}

	const writes = 40
	const readersPerWrite = 4

	var wg sync.WaitGroup
	errs := make(chan error, writes*(readersPerWrite+1))

	for i := 0; i < writes; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			batch := scoreBatch(t, []string{fmt.Sprintf("k%d", i)}, []float32{float32(i)})
			if err := reg.Write("churn", batch); err != nil {
				errs <- err
			}
		}(i)

		for j := 0; j < readersPerWrite; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				result, err := reg.Read("churn", []string{"a"}, []string{"score"})
				if err != nil {
					errs <- err
					return
				}
				score, _ := result.Column("score")
				if !score.IsValid(0) || score.Float32Values[0] != 0 {
					errs <- fmt.Errorf("row for key %q: got %v valid=%v, want 0", "a", score.Float32Values[0], score.IsValid(0))
				}
			}()
		}
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent read/write failed: %v", err)
	}
}
