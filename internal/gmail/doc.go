// Package gmail wraps the Gmail API calls the mailbox backend needs:
// listing inbox messages with their metadata headers, label changes,
// trashing, label lookup and creation, and RFC 2369 one-click unsubscribe
// requests.
//
// A Client is bound to one account. NewClientForAccount authorizes it with
// the token stored by the google package; NewClient accepts a prepared
// service, which is how tests point it at an httptest server:
//
//	svc, _ := gmailv1.NewService(ctx,
//		option.WithEndpoint(srv.URL+"/"),
//		option.WithHTTPClient(srv.Client()))
//	c := gmail.NewClient(svc, "test")
package gmail
