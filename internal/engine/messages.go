package engine

// User-facing copy for each step of the flow.
const (
	msgWelcome = "Welcome to JayyConnect!\n\n" +
		"This bot helps you connect with people across Nigeria. All data is encrypted and handled with care.\n\n" +
		"Ready to start?"
	msgDeclined        = "No problem. Feel free to come back anytime! Type /start to begin again."
	msgAskLocation     = "Great! Please share your location so I can find connections in your state. You can use the paperclip icon to send your live or current location."
	msgBadLocation     = "Could not read your location. Please try again or /cancel."
	msgNoRegion        = "Sorry, I couldn't determine a supported state from your location. Please try again or /cancel."
	msgNoResources     = "No connections found for %s at the moment. Please check back later or try another location."
	msgRegionConfirmed = "Location confirmed: %s State. Searching for available connections..."
	msgChooseResource  = "Here are the available connections. Please choose one to proceed to payment."
	msgSelected        = "You have selected %s. To get the contact details, a one-time fee of NGN %d is required."
	msgPayPrompt       = "Please complete the payment using the button below. I will notify you once it's confirmed."
	msgAwaitingPayment = "I'm still waiting for your payment to be confirmed. I'll message you the moment it settles."
	msgAskContact      = "Please reply with your name and phone number so your connection can reach you. This will be kept private and encrypted."
	msgWelcomeBackPaid = "Welcome back! Your payment is confirmed.\n\n" + msgAskContact
	msgContactSaved    = "Your contact info has been saved securely! Thank you.\n\n" +
		"You can now request a single, protected copy of the profile image for your records. " +
		"It will be watermarked and reduced. Sharing is strictly prohibited."
	msgDisclosureNotice = "IMPORTANT: This is your one-time copy. It is tracked, and saving or sharing it is prohibited."
	msgQuotaExceeded    = "You have reached your access limit (%d copies)."
	msgCooldownActive   = "Please wait %d minutes between access attempts."
	msgNeedEntitlement  = "Please complete the connection flow first. Type /start to begin."
	msgCancelled        = "Process cancelled. Type /start to begin again."
	msgNotAuthorized    = "You are not authorized to use this command."
	msgUserCount        = "Total users in the database: %d"
	msgRetryLater       = "That service is currently unavailable. Please try again in a moment."
	msgPaymentDown      = "Payment service is currently unavailable. Please try again later."
	msgUnknownCommand   = "Unknown command. Available: /start, /cancel"
)
