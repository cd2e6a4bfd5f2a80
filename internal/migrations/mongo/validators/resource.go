package validators

import "go.mongodb.org/mongo-driver/bson"

var ResourceValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType": "object",
		"required": []string{
			"_id",
			"name",
			"display_name",
			"created_at",
		},
		"properties": bson.M{
			"_id": bson.M{
				"bsonType": "string",
				"pattern":  "^[a-z0-9]+(-[a-z0-9]+)*$",
			},
			"name": bson.M{
				"bsonType":  "string",
				"minLength": 2,
				"maxLength": 100,
			},
			"display_name": bson.M{
				"bsonType":  "string",
				"minLength": 2,
				"maxLength": 100,
			},
			"created_at": bson.M{
				"bsonType": "date",
			},
		},
	},
}
