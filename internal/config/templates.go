package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "catalog":
		return catalogTemplate, nil
	case "profile":
		return profileTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const catalogTemplate = `[[adapters]]
id = "SIM"
name = "In-process simulator"
vendor = "rp1210test"
driver = "sim"
time_stamp_weight = 1.0

[[adapters.devices]]
id = 1
name = "sim0"
description = "shared virtual network"
connection = "network=default"

[[adapters]]
id = "SOCKETCAN"
name = "Linux SocketCAN"
driver = "socketcan"
time_stamp_weight = 1.0

[[adapters.devices]]
id = 1
name = "can0"
connection = "iface=can0"

[[adapters.devices]]
id = 2
name = "vcan0"
description = "virtual CAN interface"
connection = "iface=vcan0"

[[adapters]]
id = "UDP"
name = "UDP virtual bus"
driver = "udp"
time_stamp_weight = 1.0

[[adapters.devices]]
id = 1
name = "udp-a"
connection = "listen=127.0.0.1:14501;peers=127.0.0.1:14502"

[[adapters.devices]]
id = 2
name = "udp-b"
connection = "listen=127.0.0.1:14502;peers=127.0.0.1:14501"
`

const profileTemplate = `adapter = "SIM"
device = 1
connection_string = "J1939:Baud=Auto"
address = "F9"
dest = "00"
pgn = "FFF1"
count = 10
verbose = false
catalog = ""
admin_addr = ""
admin_token = ""
ping_timeout = "2s"
echo_timeout = "250ms"
`
