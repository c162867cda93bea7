package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fuseid-project/fuseid/internal/core"
)

// RawPublisher publishes raw sensor records onto a bus channel. Satisfied by
// *core.Bus.
type RawPublisher interface {
	PublishRaw(channel core.Channel, data []byte) error
}

// SyslogServer listens for syslog messages (RFC 5424 / RFC 3164) over UDP
// and/or TCP and forwards them as raw HIDS log records onto the bus. It
// exists for hosts that run no HIDS agent: their system logs still feed the
// fusion pipeline this way.
type SyslogServer struct {
	cfg     *core.SyslogConfig
	bus     RawPublisher
	logger  zerolog.Logger
	minSev  core.Severity
	ctx     context.Context
	cancel  context.CancelFunc
	udpConn *net.UDPConn
	tcpLn   net.Listener
}

// NewSyslogServer creates a syslog gateway.
func NewSyslogServer(cfg *core.SyslogConfig, bus RawPublisher, logger zerolog.Logger) *SyslogServer {
	minSev := core.SeverityInfo
	if cfg.MinSeverity != "" {
		minSev = core.ParseSeverity(cfg.MinSeverity)
	}
	return &SyslogServer{
		cfg:    cfg,
		bus:    bus,
		minSev: minSev,
		logger: logger.With().Str("component", "syslog_ingest").Logger(),
	}
}

// Start begins listening for syslog messages.
func (s *SyslogServer) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	proto := strings.ToLower(s.cfg.Protocol)
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	if proto == "udp" || proto == "both" {
		if err := s.startUDP(addr); err != nil {
			return fmt.Errorf("starting syslog UDP listener: %w", err)
		}
	}

	if proto == "tcp" || proto == "both" {
		if err := s.startTCP(addr); err != nil {
			return fmt.Errorf("starting syslog TCP listener: %w", err)
		}
	}

	s.logger.Info().Str("addr", addr).Str("protocol", proto).Msg("syslog gateway started")
	return nil
}

// Stop shuts down the syslog server.
func (s *SyslogServer) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.udpConn != nil {
		s.udpConn.Close()
	}
	if s.tcpLn != nil {
		s.tcpLn.Close()
	}
	s.logger.Info().Msg("syslog gateway stopped")
	return nil
}

func (s *SyslogServer) startUDP(addr string) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("resolving UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("listening on UDP %s: %w", addr, err)
	}
	s.udpConn = conn

	go func() {
		buf := make([]byte, 65536)
		for {
			select {
			case <-s.ctx.Done():
				return
			default:
			}

			s.udpConn.SetReadDeadline(time.Now().Add(1 * time.Second))
			n, remoteAddr, err := s.udpConn.ReadFromUDP(buf)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue
				}
				if s.ctx.Err() != nil {
					return
				}
				s.logger.Error().Err(err).Msg("UDP read error")
				continue
			}

			relayIP := ""
			if remoteAddr != nil {
				relayIP = remoteAddr.IP.String()
			}
			s.processMessage(string(buf[:n]), relayIP)
		}
	}()

	return nil
}

func (s *SyslogServer) startTCP(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on TCP %s: %w", addr, err)
	}
	s.tcpLn = ln

	go func() {
		for {
			select {
			case <-s.ctx.Done():
				return
			default:
			}

			conn, err := ln.Accept()
			if err != nil {
				if s.ctx.Err() != nil {
					return
				}
				s.logger.Error().Err(err).Msg("TCP accept error")
				continue
			}

			go s.handleTCPConn(conn)
		}
	}()

	return nil
}

func (s *SyslogServer) handleTCPConn(conn net.Conn) {
	defer conn.Close()

	relayIP := ""
	if addr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		relayIP = addr.IP.String()
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 65536), 65536)

	for scanner.Scan() {
		select {
		case <-s.ctx.Done():
			return
		default:
		}
		s.processMessage(scanner.Text(), relayIP)
	}
}

// processMessage parses a syslog line into a raw HIDS log record and
// publishes it to the bus. Messages below the configured severity floor are
// dropped here, before they can flood the pipeline.
func (s *SyslogServer) processMessage(raw, relayIP string) {
	parsed := parseSyslog(raw)
	if parsed == nil {
		return
	}

	severity := severityFromPriority(parsed.Severity)
	if severity < s.minSev {
		return
	}

	record := buildRawRecord(parsed, raw, relayIP, severity)
	data, err := json.Marshal(record)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode syslog record")
		return
	}

	if err := s.bus.PublishRaw(core.ChannelHIDS, data); err != nil {
		s.logger.Error().Err(err).Msg("failed to publish syslog record")
	}
}

// buildRawRecord shapes the parsed message as a raw HIDS log-analyzer record
// so it normalizes like any other HIDS alert.
func buildRawRecord(msg *syslogMessage, raw, relayIP string, severity core.Severity) map[string]interface{} {
	record := map[string]interface{}{
		"component":  "log_analyzer",
		"alert_type": classify(msg),
		"message":    msg.Message,
		"severity":   severity.String(),
		"hostname":   msg.Hostname,
		"raw_syslog": raw,
		"details": map[string]interface{}{
			"facility": msg.Facility,
			"app_name": msg.AppName,
			"pid":      msg.ProcID,
		},
	}

	if msg.Timestamp != nil {
		record["timestamp"] = msg.Timestamp.UTC().Format(time.RFC3339Nano)
	}

	// Prefer an IP reported inside the message body over the relay address.
	if m := srcIPRe.FindStringSubmatch(msg.AppName + " " + msg.Message); m != nil {
		record["src_ip"] = m[1]
	} else if relayIP != "" {
		record["src_ip"] = relayIP
	}

	return record
}

// syslogMessage is a parsed syslog line.
type syslogMessage struct {
	Facility  int
	Severity  int
	Timestamp *time.Time
	Hostname  string
	AppName   string
	ProcID    string
	Message   string
}

// RFC 5424: <PRI>VERSION TIMESTAMP HOSTNAME APP-NAME PROCID MSGID MSG
var rfc5424Re = regexp.MustCompile(`^<(\d{1,3})>(\d)\s+(\S+)\s+(\S+)\s+(\S+)\s+(\S+)\s+(\S+)\s*(.*)$`)

// RFC 3164: <PRI>TIMESTAMP HOSTNAME MSG
var rfc3164Re = regexp.MustCompile(`^<(\d{1,3})>([A-Z][a-z]{2}\s+\d{1,2}\s+\d{2}:\d{2}:\d{2})\s+(\S+)\s+(.*)$`)

// Bare priority: <PRI>MSG
var barePriRe = regexp.MustCompile(`^<(\d{1,3})>(.+)$`)

func parseSyslog(raw string) *syslogMessage {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	if m := rfc5424Re.FindStringSubmatch(raw); m != nil {
		pri, _ := strconv.Atoi(m[1])
		msg := &syslogMessage{
			Facility: pri / 8,
			Severity: pri % 8,
			Hostname: m[4],
			AppName:  m[5],
			ProcID:   m[6],
			Message:  m[8],
		}
		if t, err := time.Parse(time.RFC3339, m[3]); err == nil {
			msg.Timestamp = &t
		}
		return msg
	}

	if m := rfc3164Re.FindStringSubmatch(raw); m != nil {
		pri, _ := strconv.Atoi(m[1])
		msg := &syslogMessage{
			Facility: pri / 8,
			Severity: pri % 8,
			Hostname: m[3],
			Message:  m[4],
		}
		// BSD timestamps carry no year.
		tsStr := fmt.Sprintf("%d %s", time.Now().Year(), m[2])
		if t, err := time.Parse("2006 Jan  2 15:04:05", tsStr); err == nil {
			msg.Timestamp = &t
		} else if t, err := time.Parse("2006 Jan 2 15:04:05", tsStr); err == nil {
			msg.Timestamp = &t
		}
		// "sshd[1234]: message" carries the app name inline.
		if idx := strings.Index(msg.Message, ":"); idx > 0 {
			appPart := msg.Message[:idx]
			if pidIdx := strings.Index(appPart, "["); pidIdx > 0 {
				msg.AppName = appPart[:pidIdx]
				msg.ProcID = strings.Trim(appPart[pidIdx:], "[]")
			} else {
				msg.AppName = appPart
			}
			msg.Message = strings.TrimSpace(msg.Message[idx+1:])
		}
		return msg
	}

	if m := barePriRe.FindStringSubmatch(raw); m != nil {
		pri, _ := strconv.Atoi(m[1])
		return &syslogMessage{
			Facility: pri / 8,
			Severity: pri % 8,
			Message:  m[2],
		}
	}

	return nil
}

// severityFromPriority maps syslog severity (0=emergency..7=debug) to the
// canonical scale.
func severityFromPriority(sev int) core.Severity {
	switch {
	case sev <= 1: // emergency, alert
		return core.SeverityCritical
	case sev <= 3: // critical, error
		return core.SeverityHigh
	case sev <= 4: // warning
		return core.SeverityMedium
	case sev <= 5: // notice
		return core.SeverityLow
	default: // info, debug
		return core.SeverityInfo
	}
}

var (
	authFailureRe = regexp.MustCompile(`(?i)(failed\s+password|authentication\s+failure|invalid\s+user|failed\s+login|access\s+denied|bad\s+password|account\s+locked)`)
	authSuccessRe = regexp.MustCompile(`(?i)(accepted\s+password|accepted\s+publickey|session\s+opened|successful\s+login)`)
	privilegeRe   = regexp.MustCompile(`(?i)(sudo:.*COMMAND|su:|privilege|setuid)`)
	bruteForceRe  = regexp.MustCompile(`(?i)(repeated|too\s+many).*(failure|attempt)`)
	fileChangeRe  = regexp.MustCompile(`(?i)(file\s+changed|integrity|auditd.*write|auditd.*unlink)`)
	firewallRe    = regexp.MustCompile(`(?i)(iptables|nftables|ufw|firewall).*(denied|blocked|drop|reject)`)
	kernelRe      = regexp.MustCompile(`(?i)(oom|segfault|panic|oops|call\s+trace)`)
)

// classify maps syslog content to a HIDS alert type. The titles match what
// the host agents emit so correlation rules treat both feeds uniformly.
func classify(msg *syslogMessage) string {
	combined := msg.AppName + " " + msg.Message

	switch {
	case bruteForceRe.MatchString(combined):
		return "Brute Force Attempt"
	case authFailureRe.MatchString(combined):
		return "Authentication Failure"
	case authSuccessRe.MatchString(combined):
		return "Authentication Success"
	case privilegeRe.MatchString(combined):
		return "Privilege Escalation Activity"
	case fileChangeRe.MatchString(combined):
		return "File Integrity Change"
	case firewallRe.MatchString(combined):
		return "Firewall Block"
	case kernelRe.MatchString(combined):
		return "Kernel Fault"
	default:
		return "System Log Event"
	}
}

// srcIPRe extracts source IPs from message bodies ("from 1.2.3.4 port 22").
var srcIPRe = regexp.MustCompile(`(?:from|src|SRC=|source[=:\s])[\s=]*(\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})`)
