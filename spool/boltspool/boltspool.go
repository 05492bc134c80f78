// SPDX-FileCopyrightText: © 2024 jarkko793
// SPDX-License-Identifier: AGPL-3.0-only

// Package boltspool implements the delivery archive with a simple
// boltdb based backend.
package boltspool

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"

	"github.com/jarkko793/backend/message"
	"github.com/jarkko793/backend/spool"
	"github.com/jarkko793/backend/wire"
)

const (
	messagesBucket = "messages"
	packetsBucket  = "packets"
)

// packetRow is the serialized form of an archived fragment packet.
type packetRow struct {
	HopIndex int           `cbor:"hop_index"`
	Hops     []wire.NodeID `cbor:"hops"`
	Session  uint64        `cbor:"session"`
	Sender   wire.NodeID   `cbor:"sender"`
	Index    uint64        `cbor:"index"`
	Total    uint64        `cbor:"total"`
	Length   uint8         `cbor:"length"`
	Data     []byte        `cbor:"data"`
	Acked    bool          `cbor:"acked"`
}

type boltArchive struct {
	db *bolt.DB
}

func (a *boltArchive) Close() {
	a.db.Sync()
	a.db.Close()
}

func (a *boltArchive) StoreMessage(id spool.MessageID, m *message.Message) error {
	b, err := m.Encode()
	if err != nil {
		return err
	}
	return a.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(messagesBucket)).Put([]byte(id.String()), b)
	})
}

func (a *boltArchive) StorePacket(id spool.PacketID, pkt wire.Packet) error {
	frag, ok := pkt.Payload.(*wire.Fragment)
	if !ok {
		return fmt.Errorf("%w: %v", spool.ErrWrongPacketKind, pkt.Payload)
	}

	row := packetRow{
		HopIndex: pkt.Header.HopIndex,
		Hops:     pkt.Header.Hops,
		Session:  pkt.Session,
		Sender:   id.Sender,
		Index:    frag.Index,
		Total:    frag.Total,
		Length:   frag.Length,
		Data:     frag.Bytes(),
	}
	b, err := cbor.Marshal(row)
	if err != nil {
		return err
	}
	return a.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(packetsBucket)).Put([]byte(id.String()), b)
	})
}

func (a *boltArchive) MarkPacketAcked(id spool.PacketID) error {
	return a.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(packetsBucket))
		k := []byte(id.String())
		b := bkt.Get(k)
		if b == nil {
			return fmt.Errorf("%w: %v", spool.ErrUnknownPacket, id)
		}
		var row packetRow
		if err := cbor.Unmarshal(b, &row); err != nil {
			return err
		}
		row.Acked = true
		b, err := cbor.Marshal(row)
		if err != nil {
			return err
		}
		return bkt.Put(k, b)
	})
}

func (a *boltArchive) LoadMessage(id spool.MessageID) (*message.Message, error) {
	var m *message.Message
	err := a.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(messagesBucket)).Get([]byte(id.String()))
		if b == nil {
			return fmt.Errorf("%w: %v", spool.ErrUnknownMessage, id)
		}
		var err error
		m, err = message.Decode(b)
		return err
	})
	return m, err
}

func (a *boltArchive) PacketAcked(id spool.PacketID) (bool, error) {
	var acked bool
	err := a.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(packetsBucket)).Get([]byte(id.String()))
		if b == nil {
			return fmt.Errorf("%w: %v", spool.ErrUnknownPacket, id)
		}
		var row packetRow
		if err := cbor.Unmarshal(b, &row); err != nil {
			return err
		}
		acked = row.Acked
		return nil
	})
	return acked, err
}

// New creates (or loads) a delivery archive with the given file name f.
func New(f string) (spool.Archive, error) {
	const (
		metadataBucket = "metadata"
		versionKey     = "version"
	)

	var err error

	a := new(boltArchive)
	a.db, err = bolt.Open(f, 0600, nil)
	if err != nil {
		return nil, err
	}

	if err = a.db.Update(func(tx *bolt.Tx) error {
		// Ensure that all the buckets exist, and grab the metadata bucket.
		bkt, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return err
		}
		if _, err = tx.CreateBucketIfNotExists([]byte(messagesBucket)); err != nil {
			return err
		}
		if _, err = tx.CreateBucketIfNotExists([]byte(packetsBucket)); err != nil {
			return err
		}

		if b := bkt.Get([]byte(versionKey)); b != nil {
			// Well it looks like we loaded as opposed to created.
			if len(b) != 1 || b[0] != 0 {
				return fmt.Errorf("spool: incompatible version: %d", uint(b[0]))
			}
			return nil
		}

		// We created a new database, so populate the new `metadata` bucket.
		bkt.Put([]byte(versionKey), []byte{0})

		return nil
	}); err != nil {
		// The struct isn't getting returned so clean up the database.
		a.db.Close()
		return nil, err
	}

	return a, nil
}
