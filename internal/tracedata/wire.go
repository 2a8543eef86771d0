package tracedata

import (
	"sort"

	"github.com/vmihailenco/msgpack/v5"
)

// wireSymbol and wireThread keep the payload ordered so the same run always
// encodes to the same bytes.
type wireSymbol struct {
	ID   int    `msgpack:"id"`
	Name string `msgpack:"name"`
}

type wireThread struct {
	ID   int64  `msgpack:"id"`
	Blob []byte `msgpack:"blob"`
}

type wireReply struct {
	Found   bool         `msgpack:"found"`
	Error   string       `msgpack:"error,omitempty"`
	Symbols []wireSymbol `msgpack:"symbols,omitempty"`
	Threads []wireThread `msgpack:"threads,omitempty"`
}

func encodeSymbols(symbols map[int]string) ([]byte, error) {
	return msgpack.Marshal(toWireSymbols(symbols))
}

func decodeSymbols(b []byte) (map[int]string, error) {
	var ws []wireSymbol
	if err := msgpack.Unmarshal(b, &ws); err != nil {
		return nil, err
	}
	return fromWireSymbols(ws), nil
}

func toWireSymbols(symbols map[int]string) []wireSymbol {
	ws := make([]wireSymbol, 0, len(symbols))
	for id, name := range symbols {
		ws = append(ws, wireSymbol{ID: id, Name: name})
	}
	sort.Slice(ws, func(i, j int) bool { return ws[i].ID < ws[j].ID })
	return ws
}

func fromWireSymbols(ws []wireSymbol) map[int]string {
	symbols := make(map[int]string, len(ws))
	for _, s := range ws {
		symbols[s.ID] = s.Name
	}
	return symbols
}

func encodeReply(data *Data, replyErr error) ([]byte, error) {
	r := wireReply{Found: data != nil}
	if replyErr != nil {
		r.Found = false
		r.Error = replyErr.Error()
	}
	if r.Found {
		r.Symbols = toWireSymbols(data.Symbols)
		r.Threads = make([]wireThread, 0, len(data.Threads))
		for id, blob := range data.Threads {
			r.Threads = append(r.Threads, wireThread{ID: id, Blob: blob})
		}
		sort.Slice(r.Threads, func(i, j int) bool { return r.Threads[i].ID < r.Threads[j].ID })
	}
	return msgpack.Marshal(&r)
}

func decodeReply(b []byte) (*wireReply, error) {
	var r wireReply
	if err := msgpack.Unmarshal(b, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *wireReply) data() *Data {
	if !r.Found {
		return nil
	}
	d := &Data{
		Threads: make(map[int64][]byte, len(r.Threads)),
		Symbols: fromWireSymbols(r.Symbols),
	}
	for _, t := range r.Threads {
		d.Threads[t.ID] = t.Blob
	}
	return d
}
