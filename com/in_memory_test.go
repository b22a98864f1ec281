package com

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemory_Read(t *testing.T) {
	tt := []struct {
		desc     string
		in       string
		bufLen   int
		expected string
	}{
		{"short", "+CECN: 1", 10, "+CECN: 1"},
		{"exact", "+CECN: 1", 8, "+CECN: 1"},
		{"long", "+CECN: 1", 3, "+CE"},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			rw := NewInMemory()
			rw.PrepareRead([]byte(tc.in))
			buf := make([]byte, tc.bufLen)

			n, err := rw.Read(buf)

			assert.NoError(t, err)
			assert.Equal(t, len(tc.expected), n)
			assert.Equal(t, tc.expected, string(buf[0:n]))
		})
	}
}

func TestInMemory_ReadClose(t *testing.T) {
	rw := NewInMemory()

	go func() {
		time.Sleep(100 * time.Nanosecond)
		rw.Close()
	}()

	buf := make([]byte, 10)
	n, err := rw.Read(buf)

	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 0, n)
}

func TestInMemory_ReadLater(t *testing.T) {
	rw := NewInMemory()

	go func() {
		time.Sleep(100 * time.Nanosecond)
		rw.PrepareRead([]byte("+CECN: 1"))
	}()

	buf := make([]byte, 10)
	n, err := rw.Read(buf)

	assert.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, "+CECN: 1", string(buf[0:n]))
}

func TestInMemory_Write(t *testing.T) {
	rw := NewInMemory()

	n, err := rw.Write([]byte("AT+CECN=1"))

	assert.NoError(t, err)
	assert.Equal(t, 9, n)
	assert.Equal(t, "AT+CECN=1", string(rw.Written()))
	assert.Equal(t, "AT+CECN=1", string(rw.Written()))

	rw.ClearWrite()
	assert.Equal(t, "", string(rw.Written()))
}

func TestInMemory_Responder(t *testing.T) {
	rw := NewInMemory()
	rw.SetResponder(func(request string) string {
		return request + ": OK\r\n"
	})

	_, err := rw.Write([]byte("AT+CECSTD?\r\n"))
	require.NoError(t, err)

	buf := make([]byte, 32)
	n, err := rw.Read(buf)

	assert.NoError(t, err)
	assert.Equal(t, "AT+CECSTD?: OK\r\n", string(buf[:n]))
	assert.Equal(t, []string{"AT+CECSTD?"}, rw.WrittenLines())
}

func TestInMemory_CloseWhenEmpty(t *testing.T) {
	rw := NewInMemory()
	rw.PrepareRead([]byte("OK"))
	rw.CloseWhenEmpty(true)

	buf := make([]byte, 10)
	n, err := rw.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = rw.Read(buf)
	assert.Equal(t, io.EOF, err)
}
