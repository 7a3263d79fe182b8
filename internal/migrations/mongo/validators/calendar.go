package validators

import "go.mongodb.org/mongo-driver/bson"

var CalendarValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"_id",
			"tenant_id",
			"name",
			"slot_duration_min",
			"slot_interval_min",
			"default_mode",
			"status",
			"version",
			"created_at",
		},
		"additionalProperties": true,

		"properties": bson.M{
			"_id":       bson.M{"bsonType": "string"},
			"tenant_id": bson.M{"bsonType": "string", "minLength": 1},
			"name": bson.M{
				"bsonType":  "string",
				"minLength": 2,
				"maxLength": 120,
			},
			"timezone": bson.M{"bsonType": "string"},
			"slot_duration_min": bson.M{
				"bsonType": "int",
				"minimum":  1,
				"maximum":  1440,
			},
			"slot_interval_min": bson.M{
				"bsonType": "int",
				"minimum":  1,
				"maximum":  1440,
			},
			"default_mode": bson.M{
				"enum": []string{"available_by_default", "unavailable_by_default"},
			},
			"rule_evaluation_order": bson.M{
				"enum": []string{"specificity_then_priority", "priority_then_specificity"},
			},
			"conflict_resolution_mode": bson.M{
				"enum": []string{"unavailable_wins", "available_wins", "priority_wins"},
			},
			"status":     bson.M{"enum": []string{"active", "inactive", "archived"}},
			"version":    bson.M{"bsonType": "int", "minimum": 0},
			"created_at": bson.M{"bsonType": "date"},
			"updated_at": bson.M{"bsonType": "date"},
		},
	},
}

var AvailabilityRuleValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType":             "object",
		"required":             []string{"_id", "tenant_id", "calendar_id", "mode", "action", "is_active"},
		"additionalProperties": true,
		"properties": bson.M{
			"_id":         bson.M{"bsonType": "string"},
			"tenant_id":   bson.M{"bsonType": "string", "minLength": 1},
			"calendar_id": bson.M{"bsonType": "string", "minLength": 1},
			"mode":        bson.M{"enum": []string{"recurring", "date_range", "timestamp_range"}},
			"action": bson.M{
				"enum": []string{"available", "unavailable", "override_hours", "special_pricing", "capacity_adjustment"},
			},
			"start_time": bson.M{"bsonType": "string", "pattern": "^([01][0-9]|2[0-3]):[0-5][0-9]$"},
			"end_time":   bson.M{"bsonType": "string", "pattern": "^([01][0-9]|2[0-4]):[0-5][0-9]$"},
			"start_date": bson.M{"bsonType": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"},
			"end_date":   bson.M{"bsonType": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"},
			"start_at":   bson.M{"bsonType": "date"},
			"end_at":     bson.M{"bsonType": "date"},
			"priority":   bson.M{"bsonType": "int"},
			"is_active":  bson.M{"bsonType": "bool"},
		},
	},
}
