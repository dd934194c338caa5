package codec

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// ProcessResponseRequest asks the gateway for the authoritative state of the
// transaction referenced by an encrypted result token.
type ProcessResponseRequest struct {
	XMLName  xml.Name `xml:"ProcessResponse"`
	UserID   string   `xml:"PxPayUserId"`
	Key      string   `xml:"PxPayKey"`
	Response string   `xml:"Response"`
}

// Marshal renders the request body.
func (r ProcessResponseRequest) Marshal() (string, error) {
	out, err := xml.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal ProcessResponse: %w", err)
	}
	return string(out), nil
}

// Reply is the gateway answer to a ProcessResponse query.
type Reply struct {
	XMLName        xml.Name `xml:"Response"`
	Valid          string   `xml:"valid,attr"`
	TxnID          string   `xml:"TxnId"`
	Success        string   `xml:"Success"`
	AuthCode       string   `xml:"AuthCode"`
	CardName       string   `xml:"CardName"`
	CardHolderName string   `xml:"CardHolderName"`
	CardNumber     string   `xml:"CardNumber"`
	DateExpiry     string   `xml:"DateExpiry"`
	ClientInfo     string   `xml:"ClientInfo"`
	PaynowTxnRef   string   `xml:"PaynowTxnRef"`
	TxnMac         string   `xml:"TxnMac"`
	ResponseText   string   `xml:"ResponseText"`

	// elements holds every child of a parsed reply in document order with
	// its untrimmed text.
	elements Fields
}

// IsValid reports whether the gateway flagged the reply as valid.
func (r *Reply) IsValid() bool {
	return strings.TrimSpace(r.Valid) == "1"
}

// Approved reports whether the gateway marked the payment successful.
func (r *Reply) Approved() bool {
	return strings.TrimSpace(r.Success) == "1"
}

// Fields returns the signed reply fields in document order. TxnMac carries the
// digest and is left out. A reply built in code has the order Marshal writes.
func (r *Reply) Fields() Fields {
	if r.elements != nil {
		fields := make(Fields, 0, len(r.elements))
		for _, f := range r.elements {
			if !strings.EqualFold(f.Key, macElement) {
				fields = append(fields, f)
			}
		}
		return fields
	}

	return Fields{
		{Key: "TxnId", Value: r.TxnID},
		{Key: "Success", Value: r.Success},
		{Key: "AuthCode", Value: r.AuthCode},
		{Key: "CardName", Value: r.CardName},
		{Key: "CardHolderName", Value: r.CardHolderName},
		{Key: "CardNumber", Value: r.CardNumber},
		{Key: "DateExpiry", Value: r.DateExpiry},
		{Key: "ClientInfo", Value: r.ClientInfo},
		{Key: "PaynowTxnRef", Value: r.PaynowTxnRef},
		{Key: "ResponseText", Value: r.ResponseText},
	}
}

// Marshal renders the reply. The gateway fakes in tests use it.
func (r *Reply) Marshal() (string, error) {
	out, err := xml.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal reply: %w", err)
	}
	return string(out), nil
}

const (
	replyElement = "Response"
	macElement   = "TxnMac"
)

// ParseReply decodes a gateway XML reply. The typed fields are trimmed, the
// signed fields keep the exact element text.
func ParseReply(data []byte) (*Reply, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty reply", ErrParse)
	}

	dec := xml.NewDecoder(bytes.NewReader(data))
	reply := &Reply{}
	inside, closed := false, false

	for !closed {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if !inside {
				if t.Name.Local != replyElement {
					return nil, fmt.Errorf("%w: unexpected root <%s>", ErrParse, t.Name.Local)
				}
				inside = true
				reply.XMLName = t.Name
				reply.elements = Fields{}
				for _, attr := range t.Attr {
					if attr.Name.Local == "valid" {
						reply.Valid = attr.Value
					}
				}
				continue
			}

			var el struct {
				Value string `xml:",chardata"`
			}
			if err := dec.DecodeElement(&el, &t); err != nil {
				return nil, fmt.Errorf("%w: <%s>: %v", ErrParse, t.Name.Local, err)
			}
			reply.elements = append(reply.elements, Field{Key: t.Name.Local, Value: el.Value})
			reply.assign(t.Name.Local, strings.TrimSpace(el.Value))
		case xml.EndElement:
			closed = inside
		}
	}

	if !closed {
		return nil, fmt.Errorf("%w: no <%s> element", ErrParse, replyElement)
	}
	return reply, nil
}

func (r *Reply) assign(name, value string) {
	switch name {
	case "TxnId":
		r.TxnID = value
	case "Success":
		r.Success = value
	case "AuthCode":
		r.AuthCode = value
	case "CardName":
		r.CardName = value
	case "CardHolderName":
		r.CardHolderName = value
	case "CardNumber":
		r.CardNumber = value
	case "DateExpiry":
		r.DateExpiry = value
	case "ClientInfo":
		r.ClientInfo = value
	case "PaynowTxnRef":
		r.PaynowTxnRef = value
	case macElement:
		r.TxnMac = value
	case "ResponseText":
		r.ResponseText = value
	}
}
