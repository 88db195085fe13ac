package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/foyerlink/foyer-core/internal/auth"
	"github.com/foyerlink/foyer-core/internal/device"
)

func TestDeviceCommand_Dispatches(t *testing.T) {
	env := newTestEnv(t)
	guard := env.seedUser(t, "guard1", auth.RoleGuard)
	env.seedDevice(t, "door-lobby", device.TypeDoor)

	status := env.request(t, http.MethodPost, "/api/v1/devices/door-lobby/command",
		env.tokenFor(t, guard),
		deviceCommandRequest{Command: "unlock", Params: map[string]any{"duration_s": 5}}, nil)
	if status != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", status)
	}

	msgs := env.publisher.published()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 bus publication, got %d", len(msgs))
	}
	if msgs[0].Topic != "foyer/command/door-lobby" {
		t.Errorf("unexpected topic %s", msgs[0].Topic)
	}

	var payload map[string]any
	if err := json.Unmarshal(msgs[0].Payload, &payload); err != nil {
		t.Fatalf("decoding command payload: %v", err)
	}
	if payload["command"] != "unlock" {
		t.Errorf("expected unlock command, got %v", payload["command"])
	}
	if payload["issued_by"] != float64(guard.ID) {
		t.Errorf("expected issued_by %d, got %v", guard.ID, payload["issued_by"])
	}
}

func TestDeviceCommand_UnknownDevice(t *testing.T) {
	env := newTestEnv(t)
	guard := env.seedUser(t, "guard1", auth.RoleGuard)

	status := env.request(t, http.MethodPost, "/api/v1/devices/ghost/command",
		env.tokenFor(t, guard), deviceCommandRequest{Command: "unlock"}, nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
}

func TestDeviceCommand_InactiveDevice(t *testing.T) {
	env := newTestEnv(t)
	guard := env.seedUser(t, "guard1", auth.RoleGuard)
	dev := env.seedDevice(t, "door-vault", device.TypeDoor)

	dev.IsActive = false
	if err := env.devices.Update(context.Background(), dev); err != nil {
		t.Fatalf("deactivating device: %v", err)
	}

	status := env.request(t, http.MethodPost, "/api/v1/devices/door-vault/command",
		env.tokenFor(t, guard), deviceCommandRequest{Command: "unlock"}, nil)
	if status != http.StatusConflict {
		t.Fatalf("expected 409, got %d", status)
	}
}

func TestDeviceCommand_HostForbidden(t *testing.T) {
	env := newTestEnv(t)
	host := env.seedUser(t, "host1", auth.RoleHost)
	env.seedDevice(t, "door-lobby", device.TypeDoor)

	status := env.request(t, http.MethodPost, "/api/v1/devices/door-lobby/command",
		env.tokenFor(t, host), deviceCommandRequest{Command: "unlock"}, nil)
	if status != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", status)
	}
}

func TestDeviceCRUD(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "admin1", auth.RoleAdmin)
	token := env.tokenFor(t, admin)

	var created device.Device
	status := env.request(t, http.MethodPost, "/api/v1/devices/", token,
		createDeviceRequest{DeviceID: "cam-entrance", Name: "Entrance Camera", Type: device.TypeCamera}, &created)
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d", status)
	}

	// Duplicate channel names are rejected.
	status = env.request(t, http.MethodPost, "/api/v1/devices/", token,
		createDeviceRequest{DeviceID: "cam-entrance", Name: "Dup", Type: device.TypeCamera}, nil)
	if status != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate device_id, got %d", status)
	}

	var list struct {
		Count int `json:"count"`
	}
	env.request(t, http.MethodGet, "/api/v1/devices/", token, nil, &list)
	if list.Count != 1 {
		t.Errorf("expected 1 device, got %d", list.Count)
	}
}
