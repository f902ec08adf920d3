package store_test

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"

	savetesting "github.com/savefi/ledger/utils/pkg/testing"
)

var (
	sharedDB *savetesting.DB
	dbSeq    atomic.Int64
)

func TestMain(m *testing.M) {
	log := savetesting.NewLogger()
	var err error
	sharedDB, err = savetesting.NewDB(context.Background(), log, nil)
	if err != nil {
		log.Error("failed to create shared DB", "error", err)
		os.Exit(1)
	}
	code := m.Run()
	sharedDB.Close()
	os.Exit(code)
}

// testConnStr returns a connection string for a fresh database in the shared
// container.
func testConnStr(t *testing.T) string {
	name := fmt.Sprintf("savefi_test_%d", dbSeq.Add(1))
	return savetesting.NewIsolatedDatabase(t, sharedDB, name)
}
