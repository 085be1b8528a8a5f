// Command udsclient reads one or more DIDs off an ECU over ISO-TP/CAN,
// using an ODX description to compile the requests. Grounded on the
// teacher's cmd/canopen/main.go: flag-parsed CLI args, a socketcan bus
// construction, then a single pass of application logic.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	uds "github.com/JoSglch/uds-odx"
	"github.com/JoSglch/uds-odx/config"
	"github.com/JoSglch/uds-odx/transport/isotp"
)

var defaultCanInterface = "can0"

func main() {
	log.SetLevel(log.InfoLevel)

	canInterface := flag.String("i", defaultCanInterface, "socketcan interface e.g. can0, vcan0")
	odxPath := flag.String("odx", "", "path to the ODX description file")
	configPath := flag.String("config", "", "path to the connection config INI file")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	names := flag.Args()
	if *odxPath == "" || *configPath == "" || len(names) == 0 {
		fmt.Fprintln(os.Stderr, "usage: udsclient -odx <file> -config <file> [-i <iface>] <did-name> [<did-name>...]")
		os.Exit(2)
	}

	container, err := uds.CompileOdx(*odxPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading ODX: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadConnectionConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading connection config: %v\n", err)
		os.Exit(1)
	}

	bus, err := isotp.NewSocketcanBus(*canInterface)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening %s: %v\n", *canInterface, err)
		os.Exit(1)
	}

	transport, err := isotp.New(bus, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "building transport: %v\n", err)
		os.Exit(1)
	}

	conn := uds.NewConnection(transport, container)

	result, err := conn.ReadDataByIdentifier(names...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read data by identifier: %v\n", err)
		os.Exit(1)
	}

	if neg, ok := result.(*uds.NegativeResponse); ok {
		fmt.Fprintf(os.Stderr, "negative response: NRC=0x%02X (%s)\n", neg.NRC, neg.NRCLabel)
		os.Exit(1)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "encoding result: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
