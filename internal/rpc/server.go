package rpc

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/rs/zerolog"
	interfaces "github.com/sheikh-saqib/account-ledger/internal/interfaces"
	"github.com/sheikh-saqib/account-ledger/internal/models"
)

// Server answers ledger requests arriving on a datagram socket. Requests are
// handled concurrently; the ledger serializes those on the same account.
type Server struct {
	conn   net.PacketConn
	ledger interfaces.Ledger
	logger zerolog.Logger
	wg     sync.WaitGroup
}

// Listen binds the UDP socket the ledger service answers on.
func Listen(ctx context.Context, addr string) (net.PacketConn, error) {
	var lc net.ListenConfig
	return lc.ListenPacket(ctx, "udp", addr)
}

func NewServer(conn net.PacketConn, ledger interfaces.Ledger, logger zerolog.Logger) *Server {
	return &Server{conn: conn, ledger: ledger, logger: logger}
}

// Serve reads requests until ctx is done or the socket is closed.
func (s *Server) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.conn.Close() })
	defer stop()
	defer s.wg.Wait()

	s.logger.Info().Str("addr", s.conn.LocalAddr().String()).Msg("ledger service listening")
	for {
		buf := make([]byte, DatagramSize)
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn().Err(err).Msg("rpc read failed")
			continue
		}
		req, err := DecodeRequest(buf[:n])
		if err != nil {
			s.logger.Warn().Err(err).Str("from", addr.String()).Msg("dropping undecodable request")
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.reply(addr, req.CorrelationID, s.handle(ctx, req))
		}()
	}
}

func (s *Server) reply(addr net.Addr, id uint64, payload string) {
	buf, err := EncodeResponse(Response{CorrelationID: id, Payload: payload})
	if err != nil {
		s.logger.Error().Err(err).Uint64("correlation_id", id).Msg("response does not fit a datagram")
		buf, _ = EncodeResponse(Response{CorrelationID: id, Payload: encodeResult(statusError)})
	}
	if _, err := s.conn.WriteTo(buf, addr); err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Warn().Err(err).Uint64("correlation_id", id).Msg("rpc reply failed")
	}
}

func (s *Server) handle(ctx context.Context, req Request) string {
	switch req.Command {
	case CmdCreate:
		account, err := decodeCreate(req.Payload)
		if err != nil {
			return encodeFailure(err)
		}
		if err := s.ledger.Create(ctx, account); err != nil {
			return encodeFailure(err)
		}
		return encodeResult(statusOK)

	case CmdMutate:
		id, delta, description, err := decodeMutate(req.Payload)
		if err != nil {
			return encodeFailure(err)
		}
		res, err := s.ledger.Apply(ctx, id, delta, description)
		status := statusOK
		if errors.Is(err, models.ErrStorageUnavailable) {
			status = statusStorage
		} else if err != nil {
			return encodeFailure(err)
		}
		return encodeResult(status, res.BalanceAfter, res.CreditLimit, res.TxID, int64(res.Version))

	case CmdGet:
		id, err := decodeGet(req.Payload)
		if err != nil {
			return encodeFailure(err)
		}
		bal, err := s.ledger.Get(ctx, id)
		if err != nil {
			return encodeFailure(err)
		}
		return encodeResult(statusOK, bal.Balance, bal.CreditLimit, int64(bal.Version))
	}
	return encodeFailure(errors.New("unknown command " + string(req.Command)))
}
