package main

import (
	"bufio"
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/phuhao00/scriptbridge/server/internal/model"
	"github.com/phuhao00/scriptbridge/server/internal/packet"
)

func main() {
	var host = flag.String("host", "localhost", "Server host")
	var port = flag.Int("port", 8080, "Server port")
	var name = flag.String("name", "player", "Username sent in the handshake")
	var version = flag.String("mod-version", "dev", "Mod version sent in the handshake")
	flag.Parse()

	// Connect to server
	conn, err := net.Dial("tcp", net.JoinHostPort(*host, strconv.Itoa(*port)))
	if err != nil {
		log.Fatalf("Failed to connect to server: %v", err)
	}
	defer conn.Close()

	if err := send(conn, &packet.Handshake{Username: *name, ModVersion: *version}); err != nil {
		log.Fatalf("Handshake failed: %v", err)
	}

	fmt.Printf("Connected to %s:%d as %s\n", *host, *port, *name)
	fmt.Println("Local commands: !pos <x> <y> <z> <health>, !mod <name> <id> <payload> [target]")
	fmt.Println("Anything else is sent as chat. Type 'exit' to quit the client")

	go readServer(conn)

	// Read input from user and send to server
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("You: ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "exit" {
			break
		}
		if input == "" {
			continue
		}

		p, err := parseInput(input)
		if err != nil {
			fmt.Println(err)
			continue
		}
		if err := send(conn, p); err != nil {
			fmt.Printf("Failed to send message: %v\n", err)
			break
		}
	}

	fmt.Println("Goodbye!")
}

func parseInput(input string) (packet.Packet, error) {
	fields := strings.Fields(input)
	switch fields[0] {
	case "!pos":
		if len(fields) != 5 {
			return nil, fmt.Errorf("usage: !pos <x> <y> <z> <health>")
		}
		var v [3]float64
		for i := range v {
			f, err := strconv.ParseFloat(fields[i+1], 32)
			if err != nil {
				return nil, fmt.Errorf("bad coordinate %q", fields[i+1])
			}
			v[i] = f
		}
		health, err := strconv.Atoi(fields[4])
		if err != nil {
			return nil, fmt.Errorf("bad health %q", fields[4])
		}
		return &packet.PlayerUpdate{
			Position: model.Vector3{X: float32(v[0]), Y: float32(v[1]), Z: float32(v[2])},
			Health:   int32(health),
		}, nil
	case "!mod":
		if len(fields) < 4 || len(fields) > 5 {
			return nil, fmt.Errorf("usage: !mod <name> <id> <payload> [target]")
		}
		id, err := strconv.ParseUint(fields[2], 10, 8)
		if err != nil {
			return nil, fmt.Errorf("bad custom id %q", fields[2])
		}
		mp := &packet.ModPacket{ModName: fields[1], CustomID: byte(id), Payload: []byte(fields[3])}
		if len(fields) == 5 {
			if mp.Target, err = strconv.ParseUint(fields[4], 10, 64); err != nil {
				return nil, fmt.Errorf("bad target %q", fields[4])
			}
		}
		return mp, nil
	default:
		return &packet.ChatMessage{Message: input}, nil
	}
}

func send(conn net.Conn, p packet.Packet) error {
	return packet.WriteFrame(conn, packet.Marshal(p))
}

func readServer(conn net.Conn) {
	lenBuf := make([]byte, 4)
	for {
		if _, err := io.ReadFull(conn, lenBuf); err != nil {
			fmt.Printf("\nConnection lost: %v\n", err)
			os.Exit(1)
		}
		payload := make([]byte, binary.BigEndian.Uint32(lenBuf))
		if _, err := io.ReadFull(conn, payload); err != nil {
			fmt.Printf("\nConnection lost: %v\n", err)
			os.Exit(1)
		}
		p, err := packet.Unmarshal(payload)
		if err != nil {
			fmt.Printf("\nUndecodable frame: %v\n", err)
			continue
		}
		switch p := p.(type) {
		case *packet.ChatMessage:
			sender := p.Username
			if sender == "" {
				sender = "Server"
			}
			fmt.Printf("\n%s: %s\n", sender, p.Message)
		case *packet.ModPacket:
			fmt.Printf("\n[mod %s/%d from %d] %q\n", p.ModName, p.CustomID, p.Sender, p.Payload)
		case *packet.NativeCall:
			args := make([]string, len(p.Args))
			for i, a := range p.Args {
				args[i] = fmt.Sprint(a.Value())
			}
			fmt.Printf("\n[native 0x%016X] %s\n", p.Hash, strings.Join(args, ", "))
		default:
			fmt.Printf("\n[%s]\n", p.Kind())
		}
	}
}
