package validators

import "go.mongodb.org/mongo-driver/bson"

var CapacityHoldValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"_id",
			"tenant_id",
			"target",
			"target_key",
			"effect_mode",
			"status",
			"quantity",
			"starts_at",
			"ends_at",
			"version",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id":        bson.M{"bsonType": "string"},
			"tenant_id":  bson.M{"bsonType": "string", "minLength": 1},
			"target_key": bson.M{"bsonType": "string", "minLength": 3},
			"target": bson.M{
				"bsonType": "object",
				"required": []string{"type", "id"},
				"properties": bson.M{
					"type": bson.M{"enum": []string{"calendar", "capacity_pool", "resource", "offer_version", "custom_subject"}},
					"id":   bson.M{"bsonType": "string", "minLength": 1},
				},
			},
			"effect_mode": bson.M{"enum": []string{"blocking", "non_blocking", "advisory"}},
			"status":      bson.M{"enum": []string{"active", "released", "consumed", "cancelled", "expired"}},
			"quantity": bson.M{
				"bsonType": "int",
				"minimum":  1,
				"maximum":  10000,
			},
			"starts_at":  bson.M{"bsonType": "date"},
			"ends_at":    bson.M{"bsonType": "date"},
			"expires_at": bson.M{"bsonType": "date"},
			"version":    bson.M{"bsonType": "int", "minimum": 0},
			"pool_ids": bson.M{
				"bsonType": "array",
				"items":    bson.M{"bsonType": "string"},
			},
			"created_at": bson.M{"bsonType": "date"},
		},
	},
}

var CapacityHoldEventValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType":             "object",
		"required":             []string{"_id", "tenant_id", "hold_id", "type", "next_status", "actor", "created_at"},
		"additionalProperties": true,
		"properties": bson.M{
			"_id":         bson.M{"bsonType": "string"},
			"hold_id":     bson.M{"bsonType": "string", "minLength": 1},
			"type":        bson.M{"enum": []string{"created", "extended", "released", "consumed", "cancelled", "expired"}},
			"next_status": bson.M{"enum": []string{"active", "released", "consumed", "cancelled", "expired"}},
			"actor": bson.M{
				"bsonType": "object",
				"required": []string{"type"},
				"properties": bson.M{
					"type": bson.M{"enum": []string{"user", "system", "admin"}},
				},
			},
			"created_at": bson.M{"bsonType": "date"},
		},
	},
}

var HoldPolicyValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType":             "object",
		"required":             []string{"_id", "tenant_id", "scope", "scope_key", "status", "is_enabled"},
		"additionalProperties": true,
		"properties": bson.M{
			"_id":       bson.M{"bsonType": "string"},
			"tenant_id": bson.M{"bsonType": "string", "minLength": 1},
			"scope_key": bson.M{"bsonType": "string", "minLength": 3},
			"status":    bson.M{"enum": []string{"draft", "active", "inactive", "archived"}},
			"priority":  bson.M{"bsonType": "int", "minimum": 0},
			"max_hold_duration_min": bson.M{
				"bsonType": "int",
				"minimum":  0,
			},
			"act_fast_threshold_count":         bson.M{"bsonType": "int", "minimum": 0},
			"act_fast_threshold_unique_owners": bson.M{"bsonType": "int", "minimum": 0},
		},
	},
}
