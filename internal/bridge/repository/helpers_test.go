package repository

import "go.mongodb.org/mongo-driver/mongo/integration/mtest"

func collectionNamespace(mt *mtest.T) string {
	return mt.Coll.Database().Name() + "." + mt.Coll.Name()
}
