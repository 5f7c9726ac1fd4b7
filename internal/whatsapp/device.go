package whatsapp

import (
	"context"
	"fmt"

	_ "modernc.org/sqlite"

	waCompanionReg "go.mau.fi/whatsmeow/proto/waCompanionReg"
	wastore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
)

func init() {
	wastore.DeviceProps.PlatformType = waCompanionReg.DeviceProps_CHROME.Enum()
	wastore.DeviceProps.Os = proto.String("chatgw")
}

// openDevice opens (or creates) the one whatsmeow device that backs
// connectionName, each connection getting its own sqlite-backed session
// store under AuthDir, grounded on the teacher's whatsmeow.go initStore
// (modernc.org/sqlite registered under driver name "sqlite", not
// mattn/go-sqlite3's cgo-backed "sqlite3").
func (m *Manager) openDevice(ctx context.Context, connectionName string) (*wastore.Device, error) {
	dbLog := waLog.Stdout("whatsmeow-db:"+connectionName, "ERROR", false)
	dsn := fmt.Sprintf("file:%s/session-%s.db?_foreign_keys=on", m.authDir, connectionName)
	container, err := sqlstore.New(ctx, "sqlite", dsn, dbLog)
	if err != nil {
		return nil, err
	}
	return container.GetFirstDevice(ctx)
}
