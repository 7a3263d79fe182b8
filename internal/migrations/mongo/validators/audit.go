package validators

import "go.mongodb.org/mongo-driver/bson"

var DemandAlertValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType":             "object",
		"required":             []string{"_id", "tenant_id", "target_key", "severity", "status", "opened_at", "updated_at"},
		"additionalProperties": true,
		"properties": bson.M{
			"_id":            bson.M{"bsonType": "string"},
			"tenant_id":      bson.M{"bsonType": "string", "minLength": 1},
			"target_key":     bson.M{"bsonType": "string", "minLength": 3},
			"severity":       bson.M{"enum": []string{"medium", "high", "critical"}},
			"status":         bson.M{"enum": []string{"open", "acknowledged", "resolved", "expired"}},
			"pressure_score": bson.M{"bsonType": "double", "minimum": 0},
			"opened_at":      bson.M{"bsonType": "date"},
			"updated_at":     bson.M{"bsonType": "date"},
		},
	},
}

var ResolutionRunValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType":             "object",
		"required":             []string{"_id", "tenant_id", "calendar_id", "status", "created_at"},
		"additionalProperties": true,
		"properties": bson.M{
			"_id":         bson.M{"bsonType": "string"},
			"calendar_id": bson.M{"bsonType": "string", "minLength": 1},
			"status":      bson.M{"enum": []string{"complete", "partial"}},
			"runtime_ms":  bson.M{"bsonType": "long", "minimum": 0},
			"trace":       bson.M{"bsonType": []string{"array", "null"}},
			"created_at":  bson.M{"bsonType": "date"},
		},
	},
}
