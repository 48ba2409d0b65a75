package cmd

const version = "1.0.0"
