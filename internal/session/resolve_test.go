package session

import (
	"testing"

	"github.com/virtadmin/convomem/internal/models"
)

func TestResolveReferences(t *testing.T) {
	t.Run("Pointer resolution via reference phrase", func(t *testing.T) {
		c := New("alice", "s1")
		c.UpdateContext("start_vm", models.Entities{"vm_name": "vm-100"})

		got := c.ResolveReferences("stop it", "stop_vm", nil)
		if got.String("vm_name") != "vm-100" {
			t.Fatalf("expected pointer fill, got %+v", got)
		}
	})

	t.Run("Explicit entity wins over pointer", func(t *testing.T) {
		c := New("alice", "s1")
		c.UpdateContext("start_vm", models.Entities{"vm_name": "vm-100"})

		got := c.ResolveReferences("stop it", "stop_vm", models.Entities{"vm_name": "vm-200"})
		if got.String("vm_name") != "vm-200" {
			t.Fatalf("explicit value overridden: %+v", got)
		}
	})

	t.Run("Word boundary prevents false pointer match", func(t *testing.T) {
		c := New("alice", "s1")
		c.UpdateContext("start_vm", models.Entities{"vm_name": "vm-100"})

		got := c.ResolveReferences("check the monitor", "status", nil)
		if got.Has("vm_name") {
			t.Fatalf("'it' inside 'monitor' must not resolve: %+v", got)
		}
	})

	t.Run("Favorite by exact name mention", func(t *testing.T) {
		c := New("alice", "s1")
		c.UpdateContext("start_vm", models.Entities{"vm_name": "web-01"})
		c.UpdateContext("start_vm", models.Entities{"vm_name": "db-01"})

		got := c.ResolveReferences("restart web-01 please", "restart_vm", nil)
		if got.String("vm_name") != "web-01" {
			t.Fatalf("expected exact favorite match, got %+v", got)
		}
	})

	t.Run("Sole favorite on generic keyword", func(t *testing.T) {
		c := New("alice", "s1")
		c.UpdateContext("start_vm", models.Entities{"vm_name": "vm-100"})
		// Fresh context with only favorites, no matching reference phrase.
		got := c.ResolveReferences("what about the vm", "status", nil)
		if got.String("vm_name") != "vm-100" {
			t.Fatalf("expected sole-favorite fill, got %+v", got)
		}
	})

	t.Run("Continuation cue carries previous entities", func(t *testing.T) {
		c := New("alice", "s1")
		c.UpdateContext("create_backup", models.Entities{"vm_name": "vm-100", "node": "pve1"})

		got := c.ResolveReferences("do the same for tonight", "schedule_backup", nil)
		if got.String("node") != "pve1" {
			t.Fatalf("expected carryover of node, got %+v", got)
		}
	})

	t.Run("Paired counterpart intent carries entities", func(t *testing.T) {
		c := New("alice", "s1")
		c.UpdateContext("start_vm", models.Entities{"vm_name": "vm-100"})

		got := c.ResolveReferences("now shut down", "stop_vm", nil)
		if got.String("vm_name") != "vm-100" {
			t.Fatalf("expected stop_vm after start_vm to carry vm, got %+v", got)
		}
	})

	t.Run("Unpaired intent does not carry", func(t *testing.T) {
		c := New("alice", "s1")
		c.UpdateContext("start_vm", models.Entities{"vm_name": "vm-100"})

		got := c.ResolveReferences("list everything", "list_nodes", nil)
		if got.Has("vm_name") {
			t.Fatalf("unexpected carryover: %+v", got)
		}
	})

	t.Run("History cue pulls from topic cache", func(t *testing.T) {
		c := New("alice", "s1")
		c.PushTopic("create backup")
		c.CacheTopicEntities("create backup", models.Entities{"vm_name": "vm-55"})

		got := c.ResolveReferences("about the backup we discussed earlier", "status", nil)
		if got.String("vm_name") != "vm-55" {
			t.Fatalf("expected cross-session fill, got %+v", got)
		}
	})

	t.Run("History cue without topic match is a no-op", func(t *testing.T) {
		c := New("alice", "s1")
		c.PushTopic("create backup")

		got := c.ResolveReferences("earlier you said hi", "chat", nil)
		if got.Has("vm_name") {
			t.Fatalf("unexpected fill: %+v", got)
		}
	})

	t.Run("Input map is not mutated", func(t *testing.T) {
		c := New("alice", "s1")
		c.UpdateContext("start_vm", models.Entities{"vm_name": "vm-100"})

		in := models.Entities{}
		c.ResolveReferences("stop it", "stop_vm", in)
		if len(in) != 0 {
			t.Fatalf("caller map mutated: %+v", in)
		}
	})
}
