package validators

import "go.mongodb.org/mongo-driver/bson"

var CapacityPoolValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType":             "object",
		"required":             []string{"_id", "tenant_id", "name", "total_capacity", "overbook_capacity", "is_active", "created_at"},
		"additionalProperties": true,
		"properties": bson.M{
			"_id":               bson.M{"bsonType": "string"},
			"tenant_id":         bson.M{"bsonType": "string", "minLength": 1},
			"name":              bson.M{"bsonType": "string", "minLength": 2, "maxLength": 120},
			"total_capacity":    bson.M{"bsonType": "int", "minimum": 0},
			"overbook_capacity": bson.M{"bsonType": "int", "minimum": 0},
			"is_active":         bson.M{"bsonType": "bool"},
			"created_at":        bson.M{"bsonType": "date"},
		},
	},
}

var CapacityAllocationValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType":             "object",
		"required":             []string{"_id", "tenant_id", "pool_id", "hold_id", "quantity", "status"},
		"additionalProperties": true,
		"properties": bson.M{
			"pool_id":  bson.M{"bsonType": "string", "minLength": 1},
			"hold_id":  bson.M{"bsonType": "string", "minLength": 1},
			"quantity": bson.M{"bsonType": "int", "minimum": 1},
			"status":   bson.M{"enum": []string{"active", "released", "committed"}},
		},
	},
}
