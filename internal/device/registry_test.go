package device

import (
	"context"
	"errors"
	"sync"
	"testing"

	apperrors "github.com/jittakal/fifopipe/internal/errors"
)

func TestRegistry_Create(t *testing.T) {
	reg := NewRegistry(8, 4, discardLogger(), nil)

	dev, err := reg.Create("fifo0")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if dev.Name() != "fifo0" {
		t.Errorf("Name() = %s, want fifo0", dev.Name())
	}

	if _, err := reg.Create("fifo0"); !errors.Is(err, apperrors.ErrDeviceExists) {
		t.Errorf("duplicate Create() error = %v, want ErrDeviceExists", err)
	}
}

func TestRegistry_Lookup(t *testing.T) {
	reg := NewRegistry(8, 4, discardLogger(), nil)

	if _, err := reg.Lookup("fifo0"); !errors.Is(err, apperrors.ErrDeviceNotFound) {
		t.Errorf("Lookup() of missing device error = %v, want ErrDeviceNotFound", err)
	}

	created, err := reg.Create("fifo0")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	found, err := reg.Lookup("fifo0")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if found != created {
		t.Error("Lookup() returned a different device instance")
	}
}

func TestRegistry_GetOrCreate(t *testing.T) {
	reg := NewRegistry(8, 4, discardLogger(), nil)

	first, err := reg.GetOrCreate("fifo0")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	second, err := reg.GetOrCreate("fifo0")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if first != second {
		t.Error("GetOrCreate() should return the same instance for the same name")
	}
}

func TestRegistry_GetOrCreate_Concurrent(t *testing.T) {
	reg := NewRegistry(8, 4, discardLogger(), nil)

	const goroutines = 16
	devices := make([]*Device, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dev, err := reg.GetOrCreate("fifo0")
			if err != nil {
				t.Errorf("GetOrCreate() error = %v", err)
				return
			}
			devices[i] = dev
		}(i)
	}
	wg.Wait()

	for i := 1; i < goroutines; i++ {
		if devices[i] != devices[0] {
			t.Fatal("concurrent GetOrCreate returned different instances")
		}
	}
}

func TestRegistry_Remove(t *testing.T) {
	reg := NewRegistry(8, 4, discardLogger(), nil)

	dev, err := reg.Create("fifo0")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := reg.Remove("fifo0"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	if _, err := reg.Lookup("fifo0"); !errors.Is(err, apperrors.ErrDeviceNotFound) {
		t.Errorf("Lookup() after Remove error = %v, want ErrDeviceNotFound", err)
	}

	// The removed device is destroyed.
	if _, err := dev.Write(context.Background(), []byte{1}, 1); !errors.Is(err, apperrors.ErrClosed) {
		t.Errorf("Write() on removed device error = %v, want ErrClosed", err)
	}

	if err := reg.Remove("fifo0"); !errors.Is(err, apperrors.ErrDeviceNotFound) {
		t.Errorf("second Remove() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestRegistry_CloseAll(t *testing.T) {
	reg := NewRegistry(8, 4, discardLogger(), nil)

	if _, err := reg.Create("fifo0"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := reg.Create("fifo1"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := reg.CloseAll(); err != nil {
		t.Fatalf("CloseAll() error = %v", err)
	}

	if _, err := reg.Lookup("fifo0"); !errors.Is(err, apperrors.ErrDeviceNotFound) {
		t.Errorf("Lookup() after CloseAll error = %v, want ErrDeviceNotFound", err)
	}

	// CloseAll on an empty registry is a no-op.
	if err := reg.CloseAll(); err != nil {
		t.Fatalf("second CloseAll() error = %v", err)
	}
}
