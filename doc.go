// Package shopkit is the client-side coordination layer for the fittly
// storefront: token persistence, transparent bearer attachment with
// single-flight renewal on 401, and optimistic cart and wishlist mirrors
// that reconcile with the backend.
//
// The subpackages compose freely; New wires the standard stack from
// SHOPKIT_* environment variables and Start brings it to life:
//
//	app, err := shopkit.New(ctx)
//	if err != nil {
//	    return err
//	}
//	defer app.Close()
//	if err := app.Start(ctx); err != nil {
//	    return err
//	}
//
//	if err := app.Session.Login(ctx, "alice", password); err != nil {
//	    return err
//	}
//	app.Cart.Add(ctx, cart.AddInput{ProductID: 10, Quantity: 1})
package shopkit
