package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gosnmp/gosnmp"
	"go.uber.org/zap"

	"github.com/mancow2001/ntx-custom-monitor/internal/oid"
)

const (
	// usmStatsUnknownEngineIDs is reported to clients discovering our engine.
	usmStatsUnknownEngineIDs = ".1.3.6.1.6.3.15.1.1.4.0"

	maxMessageSize = 65507
	engineBoots    = 1
)

// USM describes the single SNMPv3 user the agent accepts.
type USM struct {
	Username     string
	AuthKey      string
	PrivKey      string
	AuthProtocol string
	PrivProtocol string
	EngineID     []byte
}

func authProtocol(s string) (gosnmp.SnmpV3AuthProtocol, error) {
	switch strings.ToUpper(s) {
	case "MD5":
		return gosnmp.MD5, nil
	case "SHA":
		return gosnmp.SHA, nil
	default:
		return gosnmp.NoAuth, fmt.Errorf("unsupported auth protocol %q", s)
	}
}

func privProtocol(s string) (gosnmp.SnmpV3PrivProtocol, error) {
	switch strings.ToUpper(s) {
	case "DES":
		return gosnmp.DES, nil
	case "AES":
		return gosnmp.AES, nil
	default:
		return gosnmp.NoPriv, fmt.Errorf("unsupported privacy protocol %q", s)
	}
}

// Server speaks SNMPv3 over UDP on behalf of a Responder. Packets are
// handled one at a time on the serving goroutine.
type Server struct {
	responder *Responder
	logger    *zap.Logger
	user      string
	engineID  string
	started   time.Time
	now       func() time.Time

	// usm signs and encrypts responses; secure and plain decode requests
	// with and without the user's keys.
	usm    *gosnmp.UsmSecurityParameters
	secure *gosnmp.GoSNMP
	plain  *gosnmp.GoSNMP

	unknownEngineIDs atomic.Uint32
	running          atomic.Bool
}

// NewServer localizes the user's keys to the engine ID and prepares the
// packet codecs.
func NewServer(cfg USM, responder *Responder, logger *zap.Logger) (*Server, error) {
	auth, err := authProtocol(cfg.AuthProtocol)
	if err != nil {
		return nil, err
	}
	priv, err := privProtocol(cfg.PrivProtocol)
	if err != nil {
		return nil, err
	}
	if len(cfg.EngineID) == 0 {
		return nil, errors.New("engine id is required")
	}

	usm := &gosnmp.UsmSecurityParameters{
		UserName:                 cfg.Username,
		AuthenticationProtocol:   auth,
		AuthenticationPassphrase: cfg.AuthKey,
		PrivacyProtocol:          priv,
		PrivacyPassphrase:        cfg.PrivKey,
		AuthoritativeEngineID:    string(cfg.EngineID),
		AuthoritativeEngineBoots: engineBoots,
	}
	if err := usm.InitSecurityKeys(); err != nil {
		return nil, fmt.Errorf("localize usm keys: %w", err)
	}

	return &Server{
		responder: responder,
		logger:    logger,
		user:      cfg.Username,
		engineID:  string(cfg.EngineID),
		started:   time.Now(),
		now:       time.Now,
		usm:       usm,
		secure: &gosnmp.GoSNMP{
			Version:            gosnmp.Version3,
			SecurityModel:      gosnmp.UserSecurityModel,
			MsgFlags:           gosnmp.AuthPriv,
			SecurityParameters: usm.Copy(),
		},
		plain: &gosnmp.GoSNMP{
			Version:            gosnmp.Version3,
			SecurityModel:      gosnmp.UserSecurityModel,
			MsgFlags:           gosnmp.NoAuthNoPriv,
			SecurityParameters: &gosnmp.UsmSecurityParameters{},
		},
	}, nil
}

// Running reports whether Serve is reading packets.
func (s *Server) Running() bool { return s.running.Load() }

// Serve reads requests from conn until ctx is cancelled or conn is closed.
func (s *Server) Serve(ctx context.Context, conn net.PacketConn) error {
	s.running.Store(true)
	defer s.running.Store(false)

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	buf := make([]byte, maxMessageSize)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn("udp read failed", zap.Error(err))
			continue
		}
		out := s.HandlePacket(buf[:n], addr)
		if out == nil {
			continue
		}
		if _, err := conn.WriteTo(out, addr); err != nil {
			s.logger.Warn("udp write failed", zap.String("client", addr.String()), zap.Error(err))
		}
	}
}

// HandlePacket answers one datagram. It returns nil when the packet is
// dropped: denied client, undecodable, unauthenticated or unsupported.
func (s *Server) HandlePacket(packet []byte, from net.Addr) (out []byte) {
	defer func() {
		if r := recover(); r != nil {
			out = s.drop("panic", from, fmt.Errorf("%v", r))
		}
	}()

	client, ok := addrOf(from)
	if !ok || !s.responder.Allowed(client) {
		s.logger.Debug("client not allowed", zap.Stringer("client", from))
		return nil
	}

	req, err := s.secure.UnmarshalTrap(packet, false)
	if err != nil {
		return s.discover(packet, from, err)
	}
	sp, ok := req.SecurityParameters.(*gosnmp.UsmSecurityParameters)
	if !ok || req.Version != gosnmp.Version3 {
		return s.drop("not_usm", from, nil)
	}
	if sp.AuthoritativeEngineID != s.engineID {
		return s.report(req, sp.UserName)
	}
	if sp.UserName != s.user {
		return s.drop("unknown_user", from, nil)
	}
	if req.MsgFlags&gosnmp.AuthPriv != gosnmp.AuthPriv || sp.AuthenticationParameters == "" || len(sp.PrivacyParameters) == 0 {
		return s.drop("security_level", from, nil)
	}

	query, ok := requestFrom(req)
	if !ok {
		return s.drop("unsupported_pdu", from, nil)
	}
	return s.respond(req, s.responder.Handle(query))
}

// discover answers engine discovery probes, which arrive unauthenticated
// and fail the secure decoder.
func (s *Server) discover(packet []byte, from net.Addr, secureErr error) []byte {
	req, err := s.plain.UnmarshalTrap(packet, false)
	if err != nil || req.Version != gosnmp.Version3 {
		return s.drop("decode", from, errors.Join(secureErr, err))
	}
	sp, ok := req.SecurityParameters.(*gosnmp.UsmSecurityParameters)
	if !ok {
		return s.drop("not_usm", from, secureErr)
	}
	if sp.AuthoritativeEngineID == s.engineID {
		return s.drop("authentication", from, secureErr)
	}
	return s.report(req, sp.UserName)
}

func (s *Server) drop(reason string, from net.Addr, err error) []byte {
	droppedTotal.WithLabelValues(reason).Inc()
	s.logger.Debug("dropping snmp packet",
		zap.String("reason", reason),
		zap.Stringer("client", from),
		zap.Error(err),
	)
	return nil
}

func (s *Server) engineTime() uint32 {
	return uint32(s.now().Sub(s.started) / time.Second)
}

// report tells a client our engine ID, boots and time.
func (s *Server) report(req *gosnmp.SnmpPacket, user string) []byte {
	count := s.unknownEngineIDs.Add(1)
	reportsTotal.Inc()
	resp := &gosnmp.SnmpPacket{
		Version:       gosnmp.Version3,
		MsgFlags:      gosnmp.NoAuthNoPriv,
		SecurityModel: gosnmp.UserSecurityModel,
		SecurityParameters: &gosnmp.UsmSecurityParameters{
			UserName:                 user,
			AuthoritativeEngineID:    s.engineID,
			AuthoritativeEngineBoots: engineBoots,
			AuthoritativeEngineTime:  s.engineTime(),
		},
		ContextEngineID: s.engineID,
		ContextName:     req.ContextName,
		MsgID:           req.MsgID,
		RequestID:       req.RequestID,
		MsgMaxSize:      maxMessageSize,
		PDUType:         gosnmp.Report,
		Variables: []gosnmp.SnmpPDU{
			{Name: usmStatsUnknownEngineIDs, Type: gosnmp.Counter32, Value: count},
		},
	}
	out, err := resp.MarshalMsg()
	if err != nil {
		s.logger.Error("encode discovery report", zap.Error(err))
		return nil
	}
	return out
}

func (s *Server) respond(req *gosnmp.SnmpPacket, binds []VarBind) []byte {
	s.usm.AuthoritativeEngineTime = s.engineTime()
	resp := &gosnmp.SnmpPacket{
		Version:            gosnmp.Version3,
		MsgFlags:           gosnmp.AuthPriv,
		SecurityModel:      gosnmp.UserSecurityModel,
		SecurityParameters: s.usm,
		ContextEngineID:    req.ContextEngineID,
		ContextName:        req.ContextName,
		MsgID:              req.MsgID,
		RequestID:          req.RequestID,
		MsgMaxSize:         maxMessageSize,
		PDUType:            gosnmp.GetResponse,
		Variables:          toPDUs(binds),
	}
	if err := s.usm.InitPacket(resp); err != nil {
		s.logger.Error("prepare response", zap.Error(err))
		return nil
	}
	out, err := resp.MarshalMsg()
	if err != nil {
		s.logger.Error("encode response", zap.Error(err), zap.Int("bindings", len(binds)))
		return nil
	}
	return out
}

// requestFrom maps a decoded PDU onto a responder request.
func requestFrom(pkt *gosnmp.SnmpPacket) (Request, bool) {
	names := make([]string, len(pkt.Variables))
	for i, v := range pkt.Variables {
		names[i] = v.Name
	}
	req := Request{Names: names}
	switch pkt.PDUType {
	case gosnmp.GetRequest:
		req.Kind = Get
	case gosnmp.GetNextRequest:
		req.Kind = GetNext
	case gosnmp.GetBulkRequest:
		req.Kind = GetBulk
		req.NonRepeaters = int(pkt.NonRepeaters)
		req.MaxRepetitions = int(pkt.MaxRepetitions)
	default:
		return Request{}, false
	}
	return req, true
}

func toPDUs(binds []VarBind) []gosnmp.SnmpPDU {
	out := make([]gosnmp.SnmpPDU, len(binds))
	for i, b := range binds {
		out[i] = toPDU(b)
	}
	return out
}

func toPDU(b VarBind) gosnmp.SnmpPDU {
	name := b.Name
	if !strings.HasPrefix(name, ".") {
		name = "." + name
	}
	switch b.Exception {
	case NoSuchObject:
		return gosnmp.SnmpPDU{Name: name, Type: gosnmp.NoSuchObject}
	case NoSuchInstance:
		return gosnmp.SnmpPDU{Name: name, Type: gosnmp.NoSuchInstance}
	case EndOfMibView:
		return gosnmp.SnmpPDU{Name: name, Type: gosnmp.EndOfMibView}
	}
	switch b.Value.Type {
	case oid.Integer32:
		return gosnmp.SnmpPDU{Name: name, Type: gosnmp.Integer, Value: int(b.Value.Int())}
	case oid.Counter64:
		return gosnmp.SnmpPDU{Name: name, Type: gosnmp.Counter64, Value: b.Value.Num}
	default:
		return gosnmp.SnmpPDU{Name: name, Type: gosnmp.OctetString, Value: []byte(b.Value.Str)}
	}
}

func addrOf(a net.Addr) (netip.Addr, bool) {
	if u, ok := a.(*net.UDPAddr); ok {
		return u.AddrPort().Addr().Unmap(), true
	}
	if a == nil {
		return netip.Addr{}, false
	}
	ap, err := netip.ParseAddrPort(a.String())
	if err != nil {
		return netip.Addr{}, false
	}
	return ap.Addr().Unmap(), true
}
