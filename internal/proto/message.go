package proto

import (
	"fmt"
	"strings"
)

// Type is the message type code carried in every frame header.
type Type uint32

const (
	TypeRegister       Type = 1
	TypeLogin          Type = 2
	TypeMessage        Type = 3
	TypeBroadcast      Type = 4
	TypeHistory        Type = 5
	TypeJoinRoom       Type = 6
	TypeLeaveRoom      Type = 7
	TypeCreateRoom     Type = 8
	TypeListRooms      Type = 9
	TypePrivateMessage Type = 10
	TypeDisconnect     Type = 11
)

var typeNames = map[Type]string{
	TypeRegister:       "REGISTER",
	TypeLogin:          "LOGIN",
	TypeMessage:        "MESSAGE",
	TypeBroadcast:      "BROADCAST",
	TypeHistory:        "HISTORY",
	TypeJoinRoom:       "JOIN_ROOM",
	TypeLeaveRoom:      "LEAVE_ROOM",
	TypeCreateRoom:     "CREATE_ROOM",
	TypeListRooms:      "LIST_ROOMS",
	TypePrivateMessage: "PRIVATE_MESSAGE",
	TypeDisconnect:     "DISCONNECT",
}

// Valid reports whether t belongs to the closed set of protocol types.
func (t Type) Valid() bool {
	_, ok := typeNames[t]
	return ok
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", uint32(t))
}

// Envelope is one framed protocol message.
type Envelope struct {
	Type    Type
	Payload []byte
}

// NewText builds an envelope with a UTF-8 text payload.
func NewText(t Type, text string) Envelope {
	return Envelope{Type: t, Payload: []byte(text)}
}

// Text returns the payload as a string.
func (e Envelope) Text() string {
	return string(e.Payload)
}

// Credentials is the payload of REGISTER and LOGIN: "{username} {password}".
type Credentials struct {
	Username string
	Password string
}

// ParseCredentials splits a REGISTER/LOGIN payload. Exactly two whitespace
// separated fields are required; usernames and passwords cannot contain spaces.
func ParseCredentials(payload string) (Credentials, bool) {
	fields := strings.Fields(payload)
	if len(fields) != 2 {
		return Credentials{}, false
	}
	return Credentials{Username: fields[0], Password: fields[1]}, true
}

// FormatCredentials is the inverse of ParseCredentials.
func FormatCredentials(username, password string) string {
	return username + " " + password
}

// PrivateData is the payload of PRIVATE_MESSAGE: "{recipient} {text}".
type PrivateData struct {
	Recipient string
	Text      string
}

// ParsePrivate splits a PRIVATE_MESSAGE payload on the first space only.
func ParsePrivate(payload string) (PrivateData, bool) {
	recipient, text, ok := strings.Cut(payload, " ")
	if !ok || recipient == "" {
		return PrivateData{}, false
	}
	return PrivateData{Recipient: recipient, Text: text}, true
}

// FormatPrivate is the inverse of ParsePrivate.
func FormatPrivate(recipient, text string) string {
	return recipient + " " + text
}
