package mongo

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson"
)

func TestCollections_AreUniqueAndIndexed(t *testing.T) {
	seen := make(map[string]bool)
	for _, def := range Collections() {
		if seen[def.Name] {
			t.Errorf("collection %s defined twice", def.Name)
		}
		seen[def.Name] = true
		if len(def.Indexes) == 0 {
			t.Errorf("collection %s has no indexes", def.Name)
		}
	}

	for _, name := range []string{
		"Calendars", "Calendar_bindings", "Overlays", "Availability_rules", "Rule_exclusions",
		"Rule_templates", "Template_bindings", "Dependency_rules", "Capacity_pools",
		"Capacity_pool_members", "Capacity_allocations", "Hold_policies", "Capacity_holds",
		"Capacity_hold_events", "Demand_alerts", "Resolution_runs", "Calendar_revisions", "Advisory_locks",
	} {
		if !seen[name] {
			t.Errorf("collection %s is not migrated", name)
		}
	}
}

func TestCollections_UniqueIndexesAreNamed(t *testing.T) {
	names := make(map[string]bool)
	for _, def := range Collections() {
		for _, idx := range def.Indexes {
			if idx.Options == nil || idx.Options.Unique == nil || !*idx.Options.Unique {
				continue
			}
			if idx.Options.Name == nil || *idx.Options.Name == "" {
				t.Errorf("unnamed unique index on %s", def.Name)
				continue
			}
			if names[*idx.Options.Name] {
				t.Errorf("duplicate index name %s", *idx.Options.Name)
			}
			names[*idx.Options.Name] = true
		}
	}
	if len(names) != 5 {
		t.Errorf("expected 5 unique indexes, got %d", len(names))
	}
}

func TestValidators_DeclareJSONSchema(t *testing.T) {
	for _, def := range Collections() {
		if def.Validator == nil {
			continue
		}
		schema, ok := def.Validator["$jsonSchema"].(bson.M)
		if !ok {
			t.Errorf("%s validator has no $jsonSchema", def.Name)
			continue
		}
		if _, ok := schema["required"].([]string); !ok {
			t.Errorf("%s validator lists no required fields", def.Name)
		}
	}
}
