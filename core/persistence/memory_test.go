package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mockfold/mockfold/core/record"
)

func TestMemory_SaveLoad(t *testing.T) {

	driver := NewMemory()

	// load before any save yields an empty set
	data, err := driver.Load()
	if err != nil {
		t.Fatal(err)
	}
	assert.Empty(t, data)

	saved := map[string][]record.Record{
		"users": {{"id": float64(1), "name": "Ann"}},
	}
	if err := driver.Save(saved); err != nil {
		t.Fatal(err)
	}

	// later mutation of the passed-in data must not leak into the driver
	saved["users"][0]["name"] = "Bob"

	data, err = driver.Load()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, "Ann", data["users"][0]["name"])
}

func TestMemory_BackupRestore(t *testing.T) {

	driver := NewMemory()

	if err := driver.Save(map[string][]record.Record{"users": {{"id": float64(1)}}}); err != nil {
		t.Fatal(err)
	}

	id, err := driver.Backup("")
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("no snapshot id generated")
	}

	if err := driver.Save(map[string][]record.Record{"users": {}}); err != nil {
		t.Fatal(err)
	}

	restored, err := driver.Restore(id)
	if err != nil {
		t.Fatal(err)
	}
	assert.Len(t, restored["users"], 1)

	named, err := driver.Backup("before-test")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, "before-test", named)

	_, err = driver.Restore("no-such-snapshot")
	if err == nil {
		t.Fatal("unknown snapshot accepted")
	}
}
