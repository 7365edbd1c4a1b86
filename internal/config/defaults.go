package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

const (
	listenAddr       = "0.0.0.0:6881"
	maxPeers         = 50
	peerIDPrefix     = "-BW0100-"
	maxMessageLen    = 1 << 17
	maxDecodeDepth   = 50
	strictKeySort    = false
	handshakeTimeout = 20 * time.Second
	readTimeout      = 3 * time.Minute
	clientName       = "bitwire 0.1"
	dbFileName       = "peers.db"
	logFileName      = "bitwire.log"
)

var dataDir = filepath.Join(xdg.DataHome, configFileName)
