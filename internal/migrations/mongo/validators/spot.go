package validators

import "go.mongodb.org/mongo-driver/bson"

// SpotValidator only pins the fields bookings read; listings own the rest of the document.
var SpotValidator = bson.M{
	"$jsonSchema": bson.M{
		"bsonType":             "object",
		"required":             []string{"owner_id"},
		"additionalProperties": true,
		"properties": bson.M{
			"owner_id": bson.M{
				"bsonType":  "string",
				"minLength": 1,
			},
		},
	},
}
