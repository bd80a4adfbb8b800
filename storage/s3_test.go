package storage

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listPage = `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
<Name>dsst-pdfs</Name><Prefix></Prefix><KeyCount>%d</KeyCount><MaxKeys>2</MaxKeys>
<IsTruncated>%t</IsTruncated>%s%s
</ListBucketResult>`

func listXML(truncated bool, next string, keys ...string) string {
	var contents strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&contents, "<Contents><Key>%s</Key><Size>3</Size></Contents>", k)
	}
	token := ""
	if next != "" {
		token = "<NextContinuationToken>" + next + "</NextContinuationToken>"
	}
	return fmt.Sprintf(listPage, len(keys), truncated, token, contents.String())
}

func newTestS3Store(t *testing.T, handler http.HandlerFunc) *S3Store {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := s3.New(s3.Options{
		Region:           "us-east-1",
		BaseEndpoint:     aws.String(srv.URL),
		UsePathStyle:     true,
		RetryMaxAttempts: 1,
		Credentials:      credentials.NewStaticCredentialsProvider("key", "secret", ""),
	})
	return NewS3Store(client, "dsst-pdfs")
}

func TestS3StoreListFollowsPages(t *testing.T) {
	var listCalls int
	store := newTestS3Store(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/dsst-pdfs", strings.TrimSuffix(r.URL.Path, "/"))
		listCalls++
		w.Header().Set("Content-Type", "application/xml")
		if r.URL.Query().Get("continuation-token") == "" {
			fmt.Fprint(w, listXML(true, "page-2", "a.pdf", "notes.txt"))
			return
		}
		fmt.Fprint(w, listXML(false, "", "b.pdf"))
	})

	var keys []string
	for obj, err := range store.List(context.Background(), "") {
		require.NoError(t, err)
		keys = append(keys, obj.Key)
	}

	assert.Equal(t, []string{"a.pdf", "notes.txt", "b.pdf"}, keys)
	assert.Equal(t, 2, listCalls)
}

func TestS3StoreListStopsEarly(t *testing.T) {
	var listCalls int
	store := newTestS3Store(t, func(w http.ResponseWriter, r *http.Request) {
		listCalls++
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprint(w, listXML(true, "page-2", "a.pdf", "b.pdf"))
	})

	for obj, err := range store.List(context.Background(), "") {
		require.NoError(t, err)
		assert.Equal(t, "a.pdf", obj.Key)
		break
	}
	assert.Equal(t, 1, listCalls, "second page must not be requested")
}

func TestS3StoreListError(t *testing.T) {
	store := newTestS3Store(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>denied</Message></Error>`)
	})

	var errs []error
	for _, err := range store.List(context.Background(), "pdfs/") {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.Error(t, errs[0])
	assert.Contains(t, errs[0].Error(), "s3://dsst-pdfs/pdfs/")
}

func TestS3StoreGet(t *testing.T) {
	store := newTestS3Store(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/dsst-pdfs/12345678.pdf":
			w.Header().Set("Content-Type", "application/pdf")
			fmt.Fprint(w, "%PDF-1.4 test")
		default:
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
		}
	})

	data, err := store.Get(context.Background(), "12345678.pdf")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 test", string(data))

	_, err = store.Get(context.Background(), "missing.pdf")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestS3StoreURI(t *testing.T) {
	store := NewS3Store(nil, "dsst-pdfs")
	assert.Equal(t, "s3://dsst-pdfs/pdfs/a.pdf", store.URI("pdfs/a.pdf"))
	assert.Equal(t, "dsst-pdfs", store.Bucket())
}
