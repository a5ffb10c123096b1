package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           codegw API
// @version         1.0
// @description     HTTP gateway for self-hosted code completion and chat inference.
//
// @contact.name   codegw maintainers
// @contact.url    https://github.com/your-org/codegw
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
