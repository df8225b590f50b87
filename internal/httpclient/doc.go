// Package httpclient builds the HTTP client and request used by every virtual user.
//
// [NewRequestBuilder] validates the target URL and headers once; [RequestBuilder.Build]
// then returns a fresh GET request per iteration:
//
//	builder, err := httpclient.NewRequestBuilder(cfg, "vuload/1.0.0")
//	if err != nil {
//		return err
//	}
//	req, err := builder.Build(ctx)
//
// [NewClient] returns a client whose idle pool is sized to the VU count so
// every VU can keep its own connection alive between iterations:
//
//	client := httpclient.NewClient(httpclient.ClientOptions{
//		Timeout:         60 * time.Second,
//		MaxConnsPerHost: 10,
//	})
package httpclient
