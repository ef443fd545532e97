// Package rpc multiplexes ledger requests over a datagram socket. Every
// request and response is one fixed-size datagram of left-justified text
// fields.
package rpc

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	DatagramSize     = 64
	CommandWidth     = 9
	CorrelationWidth = 9

	RequestPayloadWidth  = DatagramSize - CommandWidth - CorrelationWidth
	ResponsePayloadWidth = DatagramSize - CorrelationWidth

	// padByte fills the payload up to its fixed width.
	padByte = 0

	maxCorrelationID = 999_999_999
)

type Command string

const (
	CmdCreate Command = "CREATE"
	CmdMutate Command = "MUTATE"
	CmdGet    Command = "GET"
)

var ErrBadFrame = errors.New("bad rpc frame")

type Request struct {
	Command       Command
	CorrelationID uint64
	Payload       string
}

type Response struct {
	CorrelationID uint64
	Payload       string
}

// EncodeRequest lays out {command:<9}{correlation_id:<9}{payload} in one datagram.
func EncodeRequest(r Request) ([]byte, error) {
	if len(r.Command) > CommandWidth {
		return nil, fmt.Errorf("%w: command %q too long", ErrBadFrame, r.Command)
	}
	if r.CorrelationID > maxCorrelationID {
		return nil, fmt.Errorf("%w: correlation id %d too large", ErrBadFrame, r.CorrelationID)
	}
	if len(r.Payload) > RequestPayloadWidth {
		return nil, fmt.Errorf("%w: payload of %d bytes exceeds %d", ErrBadFrame, len(r.Payload), RequestPayloadWidth)
	}
	buf := bytes.Repeat([]byte{padByte}, DatagramSize)
	copy(buf, fmt.Sprintf("%-*s%-*d", CommandWidth, r.Command, CorrelationWidth, r.CorrelationID))
	copy(buf[CommandWidth+CorrelationWidth:], r.Payload)
	return buf, nil
}

func DecodeRequest(buf []byte) (Request, error) {
	if len(buf) < CommandWidth+CorrelationWidth {
		return Request{}, fmt.Errorf("%w: request of %d bytes", ErrBadFrame, len(buf))
	}
	id, err := parseCorrelationID(buf[CommandWidth : CommandWidth+CorrelationWidth])
	if err != nil {
		return Request{}, err
	}
	return Request{
		Command:       Command(strings.TrimSpace(string(buf[:CommandWidth]))),
		CorrelationID: id,
		Payload:       trimPad(buf[CommandWidth+CorrelationWidth:]),
	}, nil
}

// EncodeResponse lays out {correlation_id:<9}{payload} in one datagram.
func EncodeResponse(r Response) ([]byte, error) {
	if r.CorrelationID > maxCorrelationID {
		return nil, fmt.Errorf("%w: correlation id %d too large", ErrBadFrame, r.CorrelationID)
	}
	if len(r.Payload) > ResponsePayloadWidth {
		return nil, fmt.Errorf("%w: payload of %d bytes exceeds %d", ErrBadFrame, len(r.Payload), ResponsePayloadWidth)
	}
	buf := bytes.Repeat([]byte{padByte}, DatagramSize)
	copy(buf, fmt.Sprintf("%-*d", CorrelationWidth, r.CorrelationID))
	copy(buf[CorrelationWidth:], r.Payload)
	return buf, nil
}

func DecodeResponse(buf []byte) (Response, error) {
	if len(buf) < CorrelationWidth {
		return Response{}, fmt.Errorf("%w: response of %d bytes", ErrBadFrame, len(buf))
	}
	id, err := parseCorrelationID(buf[:CorrelationWidth])
	if err != nil {
		return Response{}, err
	}
	return Response{CorrelationID: id, Payload: trimPad(buf[CorrelationWidth:])}, nil
}

func parseCorrelationID(field []byte) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(string(field)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: correlation id: %v", ErrBadFrame, err)
	}
	return id, nil
}

func trimPad(b []byte) string {
	return string(bytes.TrimRight(b, "\x00"))
}
